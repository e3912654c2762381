package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dshills/prwatch/internal/store"
)

// ErrStorageUnavailable indicates the durable store could not be reached.
// A scan must abort the affected repository but keep scanning the others.
var ErrStorageUnavailable = errors.New("storage unavailable")

// RecordStore is the slice of the durable store the ledger needs.
type RecordStore interface {
	GetReviewRecord(ctx context.Context, repo string, number int) (store.ReviewRecord, error)
	UpsertReviewRecord(ctx context.Context, repo string, number int, headSHA string, at time.Time) error
}

// Ledger answers "has this exact PR state already been reviewed" and records
// completed reviews. Identity is (repo, number, head SHA): a PR whose head
// moved since the last review is offered again.
type Ledger struct {
	records RecordStore
	locks   sync.Map // "repo#number" -> *sync.Mutex
}

// New creates a Ledger over the given record store.
func New(records RecordStore) *Ledger {
	return &Ledger{records: records}
}

// Lock acquires the mutex for (repo, number) and returns its unlock func.
// Callers hold the lock across the whole check-analyze-notify-record span so
// no two writers race on the same record.
func (l *Ledger) Lock(repo string, number int) func() {
	key := fmt.Sprintf("%s#%d", repo, number)
	v, _ := l.locks.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// ShouldReview reports whether (repo, number) at headSHA still needs review.
// It returns false only when a record exists with the same head SHA.
func (l *Ledger) ShouldReview(ctx context.Context, repo string, number int, headSHA string) (bool, error) {
	rec, err := l.records.GetReviewRecord(ctx, repo, number)
	if errors.Is(err, store.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return rec.HeadSHA != headSHA, nil
}

// RecordReviewed marks (repo, number) as reviewed at headSHA.
func (l *Ledger) RecordReviewed(ctx context.Context, repo string, number int, headSHA string, at time.Time) error {
	if err := l.records.UpsertReviewRecord(ctx, repo, number, headSHA, at); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}
