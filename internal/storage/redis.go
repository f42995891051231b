package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/session"
	"github.com/redis/go-redis/v9"
)

// RedisSessionStore implements session.Store on Redis so every worker sees
// the same active sessions. Sessions with an ExpiresAt carry a matching TTL.
type RedisSessionStore struct {
	client *redis.Client
	logger *slog.Logger
	now    func() time.Time
}

// Ensure RedisSessionStore implements session.Store
var _ session.Store = (*RedisSessionStore)(nil)

// NewRedisSessionStore wraps an existing client. A nil clock uses time.Now.
func NewRedisSessionStore(client *redis.Client, now func() time.Time, logger *slog.Logger) *RedisSessionStore {
	if now == nil {
		now = time.Now
	}
	return &RedisSessionStore{
		client: client,
		logger: logger,
		now:    now,
	}
}

func sessionKey(playerID string, kind session.Kind) string {
	return fmt.Sprintf("session:%s:%s", kind, playerID)
}

// Health and lifecycle methods

func (r *RedisSessionStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisSessionStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// ttl returns the key lifetime for s. Zero means no expiry.
func (r *RedisSessionStore) ttl(s session.Session) (time.Duration, bool) {
	if s.ExpiresAt.IsZero() {
		return 0, true
	}
	d := s.ExpiresAt.Sub(r.now())
	return d, d > 0
}

func (r *RedisSessionStore) TryStart(ctx context.Context, s session.Session) error {
	if s.StartedAt.IsZero() {
		s.StartedAt = r.now()
	}
	ttl, ok := r.ttl(s)
	if !ok {
		return fmt.Errorf("session for %s already past its deadline", s.PlayerID)
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	key := sessionKey(s.PlayerID, s.Kind)
	created, err := r.client.SetNX(ctx, key, data, ttl).Result()
	if err != nil {
		r.logger.Error("Failed to start session", "player_id", s.PlayerID, "kind", s.Kind, "error", err)
		return fmt.Errorf("failed to start session: %w", err)
	}
	if !created {
		return combat.ErrAlreadyActive.WithMessage("%s already active for player %s", s.Kind, s.PlayerID)
	}
	return nil
}

func (r *RedisSessionStore) Get(ctx context.Context, playerID string, kind session.Kind) (*session.Session, error) {
	data, err := r.client.Get(ctx, sessionKey(playerID, kind)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("Failed to load session", "player_id", playerID, "kind", kind, "error", err)
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	var s session.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.Expired(r.now()) {
		return nil, nil
	}
	return &s, nil
}

// Update overwrites an existing session without touching its TTL.
func (r *RedisSessionStore) Update(ctx context.Context, s session.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	err = r.client.SetArgs(ctx, sessionKey(s.PlayerID, s.Kind), data, redis.SetArgs{
		Mode:    "XX",
		KeepTTL: true,
	}).Err()
	if errors.Is(err, redis.Nil) {
		return combat.ErrNoActiveSession
	}
	if err != nil {
		r.logger.Error("Failed to update session", "player_id", s.PlayerID, "kind", s.Kind, "error", err)
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Clear(ctx context.Context, playerID string, kind session.Kind) error {
	if err := r.client.Del(ctx, sessionKey(playerID, kind)).Err(); err != nil {
		r.logger.Error("Failed to clear session", "player_id", playerID, "kind", kind, "error", err)
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// RedisCooldowns implements gacha.CooldownStore with expiring keys.
type RedisCooldowns struct {
	client *redis.Client
}

var _ gacha.CooldownStore = (*RedisCooldowns)(nil)

func NewRedisCooldowns(client *redis.Client) *RedisCooldowns {
	return &RedisCooldowns{client: client}
}

func (c *RedisCooldowns) Last(ctx context.Context, key string) (time.Time, bool, error) {
	raw, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("failed to read cooldown: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to parse cooldown %s: %w", key, err)
	}
	return at, true, nil
}

func (c *RedisCooldowns) Mark(ctx context.Context, key string, at time.Time, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, at.UTC().Format(time.RFC3339Nano), ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cooldown: %w", err)
	}
	return nil
}
