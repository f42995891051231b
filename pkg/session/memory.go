package session

import (
	"context"
	"sync"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

type storeKey struct {
	playerID string
	kind     Kind
}

// MemoryStore is a process-wide Store. Expired sessions are evicted lazily.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[storeKey]Session
	now      func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. A nil clock uses time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		sessions: make(map[storeKey]Session),
		now:      now,
	}
}

// live returns the stored session for k, evicting it if expired. Caller holds mu.
func (m *MemoryStore) live(k storeKey) (Session, bool) {
	s, ok := m.sessions[k]
	if !ok {
		return Session{}, false
	}
	if s.Expired(m.now()) {
		delete(m.sessions, k)
		return Session{}, false
	}
	return s, true
}

func (m *MemoryStore) TryStart(ctx context.Context, s Session) error {
	k := storeKey{playerID: s.PlayerID, kind: s.Kind}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(k); ok {
		return combat.ErrAlreadyActive.WithMessage("%s already active for player %s", s.Kind, s.PlayerID)
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = m.now()
	}
	m.sessions[k] = s.clone()
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, playerID string, kind Kind) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.live(storeKey{playerID: playerID, kind: kind})
	if !ok {
		return nil, nil
	}
	cp := s.clone()
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, s Session) error {
	k := storeKey{playerID: s.PlayerID, kind: s.Kind}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(k); !ok {
		return combat.ErrNoActiveSession
	}
	m.sessions[k] = s.clone()
	return nil
}

func (m *MemoryStore) Clear(ctx context.Context, playerID string, kind Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, storeKey{playerID: playerID, kind: kind})
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
