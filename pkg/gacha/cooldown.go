package gacha

import (
	"context"
	"sync"
	"time"
)

// CooldownStore records the last time a player-keyed action happened.
// Entries may be dropped once ttl has passed.
type CooldownStore interface {
	Last(ctx context.Context, key string) (time.Time, bool, error)
	Mark(ctx context.Context, key string, at time.Time, ttl time.Duration) error
}

// MemoryCooldowns is a process-local CooldownStore.
type MemoryCooldowns struct {
	mu      sync.Mutex
	entries map[string]time.Time
}

var _ CooldownStore = (*MemoryCooldowns)(nil)

func NewMemoryCooldowns() *MemoryCooldowns {
	return &MemoryCooldowns{entries: make(map[string]time.Time)}
}

func (m *MemoryCooldowns) Last(ctx context.Context, key string) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	at, ok := m.entries[key]
	return at, ok, nil
}

func (m *MemoryCooldowns) Mark(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = at
	return nil
}

// AttuneCooldownKey is the player-keyed timestamp key for attunement.
func AttuneCooldownKey(playerID string) string {
	return "cooldown:attune:" + playerID
}
