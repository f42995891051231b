package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/redis/go-redis/v9"
)

const (
	// SettlementsKey holds duel results waiting to be applied.
	SettlementsKey = "arena:settlements"
	// DeadSettlementsKey holds results that ran out of attempts.
	DeadSettlementsKey = "arena:settlements:dead"

	DefaultMaxSettlementAttempts = 5
)

// PendingSettlement is a duel result queued for another settlement attempt.
type PendingSettlement struct {
	Result    combat.BattleResult `json:"result"`
	Attempts  int                 `json:"attempts"`
	LastError string              `json:"last_error,omitempty"`
	QueuedAt  time.Time           `json:"queued_at"`
}

// SettlementOutbox stores failed duel settlements in Redis for retry.
type SettlementOutbox struct {
	client      *Client
	maxAttempts int
}

func NewSettlementOutbox(client *Client, maxAttempts int) *SettlementOutbox {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxSettlementAttempts
	}
	return &SettlementOutbox{client: client, maxAttempts: maxAttempts}
}

// Push queues a result whose first settlement attempt failed.
func (o *SettlementOutbox) Push(ctx context.Context, result combat.BattleResult) error {
	return o.push(ctx, SettlementsKey, PendingSettlement{
		Result:   result,
		Attempts: 1,
		QueuedAt: time.Now().UTC(),
	})
}

func (o *SettlementOutbox) push(ctx context.Context, key string, p PendingSettlement) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to serialize settlement: %w", err)
	}
	if err := o.client.rdb.RPush(ctx, key, data).Err(); err != nil {
		return fmt.Errorf("failed to queue settlement: %w", err)
	}
	return nil
}

// Pop removes the oldest pending settlement, or returns nil if there is none.
func (o *SettlementOutbox) Pop(ctx context.Context) (*PendingSettlement, error) {
	raw, err := o.client.rdb.LPop(ctx, SettlementsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop settlement: %w", err)
	}
	var p PendingSettlement
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("failed to parse settlement: %w", err)
	}
	return &p, nil
}

// Retry pops up to limit settlements and passes each to settle. Failures are
// requeued until they reach the attempt limit, then moved to the dead list.
// It returns how many settled successfully.
func (o *SettlementOutbox) Retry(ctx context.Context, limit int, settle func(context.Context, combat.BattleResult) error) (int, error) {
	settled := 0
	for range limit {
		p, err := o.Pop(ctx)
		if err != nil {
			return settled, err
		}
		if p == nil {
			return settled, nil
		}

		settleErr := settle(ctx, p.Result)
		if settleErr == nil {
			settled++
			o.client.logger.Info("Deferred settlement applied", "duel_id", p.Result.DuelID, "attempts", p.Attempts+1)
			continue
		}

		p.Attempts++
		p.LastError = settleErr.Error()
		key := SettlementsKey
		if p.Attempts >= o.maxAttempts {
			key = DeadSettlementsKey
			o.client.logger.Error("Settlement abandoned", "duel_id", p.Result.DuelID, "attempts", p.Attempts, "error", settleErr)
		} else {
			o.client.logger.Warn("Settlement retry failed", "duel_id", p.Result.DuelID, "attempts", p.Attempts, "error", settleErr)
		}
		if err := o.push(ctx, key, *p); err != nil {
			return settled, err
		}
		if key == SettlementsKey {
			// Leave the rest for the next pass instead of spinning on this one.
			return settled, nil
		}
	}
	return settled, nil
}

// Depth returns the number of settlements waiting for retry.
func (o *SettlementOutbox) Depth(ctx context.Context) (int, error) {
	n, err := o.client.rdb.LLen(ctx, SettlementsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get settlement depth: %w", err)
	}
	return int(n), nil
}

// DeadLetters returns settlements that exhausted their attempts.
func (o *SettlementOutbox) DeadLetters(ctx context.Context) ([]PendingSettlement, error) {
	raw, err := o.client.rdb.LRange(ctx, DeadSettlementsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead settlements: %w", err)
	}
	out := make([]PendingSettlement, 0, len(raw))
	for _, r := range raw {
		var p PendingSettlement
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			return nil, fmt.Errorf("failed to parse settlement: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
