package storage

import (
	"context"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// Persistence defines the operations the combat core needs from the
// player/profile database. Implementations own idempotency; callers never retry.
type Persistence interface {
	// Health and lifecycle
	Ping(ctx context.Context) error
	Close() error

	// Player profile. GetPlayer returns (nil, nil) when the player does not exist.
	GetPlayer(ctx context.Context, id string) (*combat.Player, error)
	ApplyCurrencyDelta(ctx context.Context, id string, delta combat.CurrencyDelta) error
	ApplyExperienceDelta(ctx context.Context, id string, amount int) error
	GrantItem(ctx context.Context, id string, itemRef string, qty int) error

	// History
	RecordCombatLog(ctx context.Context, entry combat.CombatLogEntry) error
	RecordBattleResult(ctx context.Context, result combat.BattleResult) error
	IncrementWinLossCounters(ctx context.Context, id string, outcome combat.DuelOutcome) error

	// Catalog and collection
	ListEncounters(ctx context.Context, maxDifficulty int) ([]combat.Encounter, error)
	ListEidolons(ctx context.Context, playerID string) ([]combat.Eidolon, error)
	GrantEidolon(ctx context.Context, playerID string, eidolon combat.Eidolon) error
}
