package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dshills/prwatch/internal/store"
)

// ErrSessionNotFound is returned by Load and Remove for an unknown name.
var ErrSessionNotFound = errors.New("session not found")

const maxNameLen = 64

// SessionStore is the slice of the durable store the manager needs.
type SessionStore interface {
	SaveSession(ctx context.Context, name string, history []store.Message) error
	LoadSession(ctx context.Context, name string) ([]store.Message, error)
	ListSessions(ctx context.Context) ([]string, error)
	RemoveSession(ctx context.Context, name string) error
}

// Manager persists named conversation histories. Operations on the same name
// are mutually exclusive; distinct names do not block each other.
type Manager struct {
	sessions SessionStore
	locks    sync.Map // name -> *sync.Mutex
}

// New creates a Manager over the given session store.
func New(sessions SessionStore) *Manager {
	return &Manager{sessions: sessions}
}

// ValidateName rejects names that are empty, oversized, or look like store
// key injection (path separators, parent references, control characters).
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("session name must not be empty")
	}
	if len(name) > maxNameLen {
		return fmt.Errorf("session name exceeds %d bytes", maxNameLen)
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("session name %q contains path-like characters", name)
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return fmt.Errorf("session name contains control characters")
		}
	}
	return nil
}

func (m *Manager) lock(name string) func() {
	v, _ := m.locks.LoadOrStore(name, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Save stores history under name, silently overwriting any previous save.
func (m *Manager) Save(ctx context.Context, name string, history []store.Message) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	unlock := m.lock(name)
	defer unlock()

	if err := m.sessions.SaveSession(ctx, name, history); err != nil {
		return fmt.Errorf("saving session %q: %w", name, err)
	}
	return nil
}

// Load returns the history saved under name, or ErrSessionNotFound.
func (m *Manager) Load(ctx context.Context, name string) ([]store.Message, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	unlock := m.lock(name)
	defer unlock()

	history, err := m.sessions.LoadSession(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %q: %w", name, err)
	}
	return history, nil
}

// List returns all saved session names.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	names, err := m.sessions.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	return names, nil
}

// Remove deletes the session saved under name, or returns ErrSessionNotFound.
func (m *Manager) Remove(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	unlock := m.lock(name)
	defer unlock()

	err := m.sessions.RemoveSession(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %q", ErrSessionNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("removing session %q: %w", name, err)
	}
	return nil
}
