// Package rewards turns combat outcomes into balance, experience and item
// changes and applies them through the persistence collaborator.
package rewards

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/storage"
)

// Damage ranges for encounter weaves, inclusive.
const (
	SuccessDamageMin = 150
	SuccessDamageMax = 350
	FailureDamageMin = 10
	FailureDamageMax = 60
)

// Duel settlement amounts.
const (
	DuelWinnerCurrency   = 100
	DuelWinnerExperience = 25
	DuelLoserCurrency    = -50
	DuelLoserExperience  = 10
)

// Outcome is the abstract result of a PvE attempt.
type Outcome struct {
	Success bool
	Reward  combat.RewardSpec
}

// DetailedRewards is what an outcome resolved to.
type DetailedRewards struct {
	Success    bool               `json:"success"`
	Damage     int                `json:"damage"`
	Currency   int                `json:"currency"`
	Experience int                `json:"experience"`
	Items      []combat.ItemGrant `json:"items,omitempty"`
}

// Resolver rolls and applies rewards.
type Resolver struct {
	store  storage.Persistence
	rng    gacha.Rand
	logger *slog.Logger
}

// NewResolver creates a Resolver. A nil rng gets a freshly seeded source.
func NewResolver(store storage.Persistence, rng gacha.Rand, logger *slog.Logger) *Resolver {
	if rng == nil {
		rng = gacha.NewRand()
	}
	return &Resolver{
		store:  store,
		rng:    rng,
		logger: logger,
	}
}

// RollRange returns a uniform integer in [lo, hi].
func RollRange(rng gacha.Rand, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rng.IntN(hi-lo+1)
}

// Roll decides damage and rewards for o without touching persistence.
func (r *Resolver) Roll(o Outcome) *DetailedRewards {
	if !o.Success {
		return &DetailedRewards{
			Damage: RollRange(r.rng, FailureDamageMin, FailureDamageMax),
		}
	}

	res := &DetailedRewards{
		Success:    true,
		Damage:     RollRange(r.rng, SuccessDamageMin, SuccessDamageMax),
		Currency:   o.Reward.Currency,
		Experience: o.Reward.Experience,
	}
	for _, ref := range o.Reward.ItemRefs {
		if r.rng.Float64() < o.Reward.ItemDropChance {
			res.Items = append(res.Items, combat.ItemGrant{ItemRef: ref, Quantity: 1})
		}
	}
	return res
}

// Apply persists rewards for playerID. The first failure is returned; earlier
// writes are not undone.
func (r *Resolver) Apply(ctx context.Context, playerID string, res *DetailedRewards) error {
	if res.Currency != 0 {
		if err := r.store.ApplyCurrencyDelta(ctx, playerID, combat.CurrencyDelta{Currency: res.Currency}); err != nil {
			r.logger.Error("Failed to apply currency", "player_id", playerID, "amount", res.Currency, "error", err)
			return combat.PersistenceError("apply currency", err)
		}
	}
	if res.Experience != 0 {
		if err := r.store.ApplyExperienceDelta(ctx, playerID, res.Experience); err != nil {
			r.logger.Error("Failed to apply experience", "player_id", playerID, "amount", res.Experience, "error", err)
			return combat.PersistenceError("apply experience", err)
		}
	}
	for _, item := range res.Items {
		if err := r.store.GrantItem(ctx, playerID, item.ItemRef, item.Quantity); err != nil {
			r.logger.Error("Failed to grant item", "player_id", playerID, "item_ref", item.ItemRef, "error", err)
			return combat.PersistenceError("grant item", err)
		}
	}
	return nil
}

// Resolve rolls o and applies the result. The rolled rewards are returned
// even when applying them fails so callers can still report damage.
func (r *Resolver) Resolve(ctx context.Context, playerID string, o Outcome) (*DetailedRewards, error) {
	res := r.Roll(o)
	if err := r.Apply(ctx, playerID, res); err != nil {
		return res, err
	}
	return res, nil
}

// NewBattleResult builds the settlement record for a finished duel.
func NewBattleResult(duelID uuid.UUID, winnerID, loserID string, rounds int, endedAt time.Time) combat.BattleResult {
	return combat.BattleResult{
		DuelID:   duelID,
		WinnerID: winnerID,
		LoserID:  loserID,
		Rounds:   rounds,
		Rewards: combat.BattleRewards{
			WinnerCurrency:   DuelWinnerCurrency,
			WinnerExperience: DuelWinnerExperience,
			LoserCurrency:    DuelLoserCurrency,
			LoserExperience:  DuelLoserExperience,
		},
		EndedAt: endedAt,
	}
}

// SettleDuel applies both sides of a duel result and records it.
// It stops at the first failure; replaying a partially applied result is
// the persistence layer's concern.
func (r *Resolver) SettleDuel(ctx context.Context, result combat.BattleResult) error {
	steps := []struct {
		op string
		fn func() error
	}{
		{"apply winner currency", func() error {
			return r.store.ApplyCurrencyDelta(ctx, result.WinnerID, combat.CurrencyDelta{Currency: result.Rewards.WinnerCurrency})
		}},
		{"apply winner experience", func() error {
			return r.store.ApplyExperienceDelta(ctx, result.WinnerID, result.Rewards.WinnerExperience)
		}},
		{"record win", func() error {
			return r.store.IncrementWinLossCounters(ctx, result.WinnerID, combat.DuelOutcomeWin)
		}},
		{"apply loser currency", func() error {
			return r.store.ApplyCurrencyDelta(ctx, result.LoserID, combat.CurrencyDelta{Currency: result.Rewards.LoserCurrency})
		}},
		{"apply loser experience", func() error {
			return r.store.ApplyExperienceDelta(ctx, result.LoserID, result.Rewards.LoserExperience)
		}},
		{"record loss", func() error {
			return r.store.IncrementWinLossCounters(ctx, result.LoserID, combat.DuelOutcomeLoss)
		}},
		{"record battle result", func() error {
			return r.store.RecordBattleResult(ctx, result)
		}},
	}

	for _, step := range steps {
		if err := step.fn(); err != nil {
			r.logger.Error("Duel settlement failed", "duel_id", result.DuelID, "step", step.op, "error", err)
			return combat.PersistenceError(step.op, err)
		}
	}

	r.logger.Info("Duel settled", "duel_id", result.DuelID, "winner_id", result.WinnerID, "loser_id", result.LoserID)
	return nil
}
