package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

type memorySession struct {
	values    map[string]string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-instance setups.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an empty store. A ttl of zero keeps sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) live(sessionID string) *memorySession {
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil
	}
	if !s.expiresAt.IsZero() && !m.now().Before(s.expiresAt) {
		delete(m.sessions, sessionID)
		return nil
	}
	return s
}

func (m *MemoryStore) Get(_ context.Context, sessionID, key string) (string, bool, error) {
	if sessionID == "" {
		return "", false, ErrMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID)
	if s == nil {
		return "", false, nil
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, sessionID string, values map[string]string) error {
	if sessionID == "" {
		return ErrMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(sessionID)
	if s == nil {
		s = &memorySession{values: make(map[string]string, len(values))}
		m.sessions[sessionID] = s
	}
	maps.Copy(s.values, values)
	if m.ttl > 0 {
		s.expiresAt = m.now().Add(m.ttl)
	}

	return nil
}

func (m *MemoryStore) Delete(_ context.Context, sessionID string, keys ...string) error {
	if sessionID == "" {
		return ErrMissingID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(keys) == 0 {
		delete(m.sessions, sessionID)
		return nil
	}
	if s := m.live(sessionID); s != nil {
		for _, k := range keys {
			delete(s.values, k)
		}
	}

	return nil
}
