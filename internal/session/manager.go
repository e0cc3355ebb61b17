package session

import (
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned for unknown session ids.
	ErrNotFound = errors.New("session not found")
	// ErrClosed is returned when a signal targets an ended session.
	ErrClosed = errors.New("session closed")
)

// Manager owns every session the engine knows about. Ended sessions stay
// available for reporting until the process exits.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	opts     Options
	newID    func() string
	logger   *slog.Logger
}

// NewManager creates a manager whose sessions share opts.
func NewManager(opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessions: make(map[string]*Session),
		opts:     opts,
		newID:    func() string { return uuid.New().String() },
		logger:   logger,
	}
}

// Create starts a new session for candidate.
func (m *Manager) Create(candidate string) (*Session, error) {
	id := m.newID()
	s, err := New(id, candidate, m.opts)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// Ingest feeds v into the session with id.
func (m *Manager) Ingest(id string, v any) (int, error) {
	s, err := m.Get(id)
	if err != nil {
		return 0, err
	}
	if s.Closed() {
		return 0, ErrClosed
	}
	return s.Ingest(v), nil
}

// Close ends the session with id. Closing an ended session is a no-op.
func (m *Manager) Close(id string) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	s.Close(s.scheduler.Now())
	return s, nil
}

// List returns all sessions ordered by start time.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Info(), out[j].Info()
		if a.StartedAt.Equal(b.StartedAt) {
			return a.ID < b.ID
		}
		return a.StartedAt.Before(b.StartedAt)
	})
	return out
}

// CloseAll ends every open session, cancelling their pending timers.
func (m *Manager) CloseAll() int {
	closed := 0
	for _, s := range m.List() {
		if s.Close(s.scheduler.Now()) {
			closed++
		}
	}
	if closed > 0 {
		m.logger.Info("closed open sessions", slog.Int("count", closed))
	}
	return closed
}
