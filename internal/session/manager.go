package session

import (
	"context"
	"sync"

	"github.com/tradelab/sim-engine/internal/store"
)

// Manager owns at most one running session per user, creating them lazily
// on first use.
type Manager struct {
	store store.Store
	cfg   Config

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a session manager.
func NewManager(st store.Store, cfg Config) *Manager {
	return &Manager{
		store:    st,
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// Session returns the user's running session, creating and starting one if
// needed. A persistence failure blocks creation.
func (m *Manager) Session(ctx context.Context, userID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s, nil
	}

	s, err := New(ctx, userID, m.store, m.cfg)
	if err != nil {
		return nil, err
	}
	s.Start()
	m.sessions[userID] = s
	return s, nil
}

// StopAll halts every session. Used on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}
