package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dshills/prwatch/internal/github"
	"github.com/dshills/prwatch/internal/ledger"
	"github.com/dshills/prwatch/internal/review"
)

type fakeFetcher struct {
	mu      sync.Mutex
	repos   []github.Repo
	pulls   map[string][]github.Pull
	diffs   map[string]string
	issues  map[string]github.Issue
	pullErr map[string]error
	diffErr map[string]error
	repoErr map[string]error
	listErr error
}

func (f *fakeFetcher) key(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

func (f *fakeFetcher) ListOwnedRepos(_ context.Context, includePrivate bool) ([]github.Repo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []github.Repo
	for _, r := range f.repos {
		if r.Private && !includePrivate {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeFetcher) GetRepo(_ context.Context, fullName string) (github.Repo, error) {
	if err := f.repoErr[fullName]; err != nil {
		return github.Repo{}, err
	}
	for _, r := range f.repos {
		if r.FullName == fullName {
			return r, nil
		}
	}
	return github.Repo{}, github.ErrNotFound
}

func (f *fakeFetcher) ListOpenPulls(_ context.Context, repo string) ([]github.Pull, error) {
	if err := f.pullErr[repo]; err != nil {
		return nil, err
	}
	return f.pulls[repo], nil
}

func (f *fakeFetcher) GetPullDiff(_ context.Context, repo string, number int) (string, error) {
	if err := f.diffErr[f.key(repo, number)]; err != nil {
		return "", err
	}
	return f.diffs[f.key(repo, number)], nil
}

func (f *fakeFetcher) GetIssue(_ context.Context, repo string, number int) (github.Issue, error) {
	is, ok := f.issues[f.key(repo, number)]
	if !ok {
		return github.Issue{}, github.ErrNotFound
	}
	return is, nil
}

type fakeDedup struct {
	mu       sync.Mutex
	records  map[string]string
	checkErr error
	saveErr  error
	locked   map[string]bool
}

func newFakeDedup() *fakeDedup {
	return &fakeDedup{records: make(map[string]string), locked: make(map[string]bool)}
}

func (d *fakeDedup) key(repo string, number int) string {
	return fmt.Sprintf("%s#%d", repo, number)
}

func (d *fakeDedup) Lock(repo string, number int) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	k := d.key(repo, number)
	if d.locked[k] {
		panic("double lock on " + k)
	}
	d.locked[k] = true
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.locked[k] = false
	}
}

func (d *fakeDedup) ShouldReview(_ context.Context, repo string, number int, headSHA string) (bool, error) {
	if d.checkErr != nil {
		return false, fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, d.checkErr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	sha, ok := d.records[d.key(repo, number)]
	return !ok || sha != headSHA, nil
}

func (d *fakeDedup) RecordReviewed(_ context.Context, repo string, number int, headSHA string, _ time.Time) error {
	if d.saveErr != nil {
		return fmt.Errorf("%w: %v", ledger.ErrStorageUnavailable, d.saveErr)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[d.key(repo, number)] = headSHA
	return nil
}

type fakeAnalyzer struct {
	mu     sync.Mutex
	calls  []review.Input
	err    error
	result review.Verdict
}

func (a *fakeAnalyzer) Analyze(_ context.Context, in review.Input) (review.Verdict, error) {
	a.mu.Lock()
	a.calls = append(a.calls, in)
	a.mu.Unlock()
	if a.err != nil {
		return review.Verdict{}, a.err
	}
	return a.result, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *fakeNotifier) Deliver(_ context.Context, text string) error {
	n.mu.Lock()
	n.sent = append(n.sent, text)
	n.mu.Unlock()
	return n.err
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func pull(number int, title, sha string) github.Pull {
	p := github.Pull{Number: number, Title: title, HTMLURL: "https://example.test/pull"}
	p.Head.SHA = sha
	return p
}

func TestRun_ReviewsNewPullOnce(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(1, "Fix parser", "abc123")},
		},
		diffs: map[string]string{"acme/widgets#1": "diff --git a/x b/x"},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "ok"}}
	notifier := &fakeNotifier{}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, notifier, quietLogger())

	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Reviewed != 1 || rep.Skipped != 0 {
		t.Errorf("Reviewed = %d, Skipped = %d, want 1, 0", rep.Reviewed, rep.Skipped)
	}
	if len(analyzer.calls) != 1 {
		t.Fatalf("Analyze calls = %d, want 1", len(analyzer.calls))
	}
	if got := dedup.records["acme/widgets#1"]; got != "abc123" {
		t.Errorf("recorded sha = %q, want abc123", got)
	}

	// Second cycle with the same head sha reviews nothing.
	rep, err = r.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	if rep.Reviewed != 0 || rep.Skipped != 1 {
		t.Errorf("second cycle Reviewed = %d, Skipped = %d, want 0, 1", rep.Reviewed, rep.Skipped)
	}
	if len(analyzer.calls) != 1 {
		t.Errorf("Analyze calls after second cycle = %d, want 1", len(analyzer.calls))
	}
}

func TestRun_NewHeadRevisionTriggersReview(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(1, "Fix parser", "def456")},
		},
		diffs: map[string]string{"acme/widgets#1": "diff"},
	}
	dedup := newFakeDedup()
	dedup.records["acme/widgets#1"] = "abc123" // reviewed at an older revision
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationBad, Summary: "regression"}}
	notifier := &fakeNotifier{}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, notifier, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Reviewed != 1 {
		t.Errorf("Reviewed = %d, want 1", rep.Reviewed)
	}
	if got := dedup.records["acme/widgets#1"]; got != "def456" {
		t.Errorf("recorded sha = %q, want def456", got)
	}
}

func TestRun_RepoFailureDoesNotAbortSiblings(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/broken"}, {FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(2, "Add docs", "aaa")},
		},
		pullErr: map[string]error{"acme/broken": github.ErrUnavailable},
		diffs:   map[string]string{"acme/widgets#2": "diff"},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "fine"}}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, &fakeNotifier{}, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Reviewed != 1 {
		t.Errorf("Reviewed = %d, want 1", rep.Reviewed)
	}
	if len(rep.Failures) != 1 || !strings.Contains(rep.Failures[0], "acme/broken") {
		t.Errorf("Failures = %v, want one entry for acme/broken", rep.Failures)
	}
}

func TestRun_AnalysisFailureLeavesNoRecord(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(3, "Refactor", "bbb")},
		},
		diffs: map[string]string{"acme/widgets#3": "diff"},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{err: review.ErrAnalysisUnavailable}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, &fakeNotifier{}, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Reviewed != 0 {
		t.Errorf("Reviewed = %d, want 0", rep.Reviewed)
	}
	if _, ok := dedup.records["acme/widgets#3"]; ok {
		t.Error("failed analysis must not leave a review record")
	}
	if len(rep.Failures) != 1 {
		t.Errorf("Failures = %v, want one entry", rep.Failures)
	}
}

func TestRun_DeliveryFailureStillRecords(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(4, "Tighten checks", "ccc")},
		},
		diffs: map[string]string{"acme/widgets#4": "diff"},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "ok"}}
	notifier := &fakeNotifier{err: errors.New("chat unreachable")}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, notifier, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.Reviewed != 1 {
		t.Errorf("Reviewed = %d, want 1", rep.Reviewed)
	}
	if got := dedup.records["acme/widgets#4"]; got != "ccc" {
		t.Errorf("recorded sha = %q, want ccc", got)
	}
}

func TestRun_StorageUnavailableAbortsOnlyThatRepo(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(5, "One", "ddd"), pull(6, "Two", "eee")},
		},
		diffs: map[string]string{"acme/widgets#5": "diff", "acme/widgets#6": "diff"},
	}
	dedup := newFakeDedup()
	dedup.checkErr = errors.New("disk gone")
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "ok"}}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, &fakeNotifier{}, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(analyzer.calls) != 0 {
		t.Errorf("Analyze calls = %d, want 0 when storage is down", len(analyzer.calls))
	}
	// The first storage failure aborts the repo; the second PR is never tried.
	if len(rep.Failures) != 1 {
		t.Errorf("Failures = %v, want exactly one repo-level entry", rep.Failures)
	}
}

func TestRun_ExplicitTargetsSkipUnknownEntries(t *testing.T) {
	fetcher := &fakeFetcher{
		repos: []github.Repo{{FullName: "acme/widgets"}},
		pulls: map[string][]github.Pull{
			"acme/widgets": {pull(7, "Polish", "fff")},
		},
		diffs:   map[string]string{"acme/widgets#7": "diff"},
		repoErr: map[string]error{"acme/missing": github.ErrNotFound},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "ok"}}

	cfg := Config{TargetRepos: []string{"acme/missing", "acme/widgets"}, MaxDiffBytes: 1 << 20}
	r := NewRunner(cfg, fetcher, dedup, analyzer, &fakeNotifier{}, quietLogger())
	rep, err := r.Run(context.Background())
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if rep.ReposScanned != 1 {
		t.Errorf("ReposScanned = %d, want 1", rep.ReposScanned)
	}
	if rep.Reviewed != 1 {
		t.Errorf("Reviewed = %d, want 1", rep.Reviewed)
	}
	if len(rep.Failures) != 1 || !strings.Contains(rep.Failures[0], "acme/missing") {
		t.Errorf("Failures = %v, want one entry for acme/missing", rep.Failures)
	}
}

func TestRun_LinkedIssueFeedsAnalysisContext(t *testing.T) {
	p := pull(8, "Fix crash (closes #12)", "ggg")
	p.Body = "Addresses the nil deref."
	fetcher := &fakeFetcher{
		repos:  []github.Repo{{FullName: "acme/widgets"}},
		pulls:  map[string][]github.Pull{"acme/widgets": {p}},
		diffs:  map[string]string{"acme/widgets#8": "diff"},
		issues: map[string]github.Issue{"acme/widgets#12": {Number: 12, Title: "Crash on empty input", Body: "panics"}},
	}
	dedup := newFakeDedup()
	analyzer := &fakeAnalyzer{result: review.Verdict{Classification: review.ClassificationGood, Summary: "ok"}}

	r := NewRunner(Config{MaxDiffBytes: 1 << 20}, fetcher, dedup, analyzer, &fakeNotifier{}, quietLogger())
	if _, err := r.Run(context.Background()); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if len(analyzer.calls) != 1 {
		t.Fatalf("Analyze calls = %d, want 1", len(analyzer.calls))
	}
	if !strings.Contains(analyzer.calls[0].IssueContext, "Crash on empty input") {
		t.Errorf("IssueContext = %q, want linked issue title", analyzer.calls[0].IssueContext)
	}
}
