package gacha

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/session"
	"github.com/jwebster45206/weave-arena/pkg/storage"
)

// DefaultAttuneCooldown is how long a player waits between attunements.
const DefaultAttuneCooldown = 10 * time.Minute

// AttuneResult describes the eidolon granted by one attunement.
type AttuneResult struct {
	Eidolon      combat.Eidolon `json:"eidolon"`
	NextAttuneAt time.Time      `json:"next_attune_at"`
}

// Attuner grants a rarity-weighted eidolon from a fixed catalog.
type Attuner struct {
	store     storage.Persistence
	cooldowns CooldownStore
	catalog   []combat.Eidolon
	weights   Weights
	cooldown  time.Duration
	rng       Rand
	now       func() time.Time
	locks     *session.KeyLock
	logger    *slog.Logger
}

// AttunerOption configures an Attuner.
type AttunerOption func(*Attuner)

func WithAttuneRand(rng Rand) AttunerOption {
	return func(a *Attuner) { a.rng = rng }
}

func WithAttuneClock(now func() time.Time) AttunerOption {
	return func(a *Attuner) { a.now = now }
}

func WithAttuneWeights(w Weights) AttunerOption {
	return func(a *Attuner) { a.weights = w }
}

func WithAttuneCooldown(d time.Duration) AttunerOption {
	return func(a *Attuner) { a.cooldown = d }
}

// NewAttuner creates an Attuner over catalog.
func NewAttuner(store storage.Persistence, cooldowns CooldownStore, catalog []combat.Eidolon, logger *slog.Logger, opts ...AttunerOption) *Attuner {
	sorted := slices.Clone(catalog)
	slices.SortFunc(sorted, func(a, b combat.Eidolon) int {
		return strings.Compare(a.ID, b.ID)
	})

	a := &Attuner{
		store:     store,
		cooldowns: cooldowns,
		catalog:   sorted,
		weights:   FromMap(combat.DefaultRarityWeights),
		cooldown:  DefaultAttuneCooldown,
		rng:       NewRand(),
		now:       time.Now,
		locks:     session.NewKeyLock(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// NewRand returns a PCG source seeded from the runtime's random generator.
func NewRand() *rand.Rand {
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// Attune draws a rarity, picks an eidolon of that rarity and grants it.
// A player may attune once per cooldown window.
func (a *Attuner) Attune(ctx context.Context, playerID string) (*AttuneResult, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, combat.ErrInvalidPlayerID
	}

	player, err := a.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, combat.PersistenceError("load player", err)
	}
	if player == nil {
		return nil, combat.ErrPlayerNotFound
	}

	unlock := a.locks.Lock(playerID)
	defer unlock()

	now := a.now()
	key := AttuneCooldownKey(playerID)
	last, ok, err := a.cooldowns.Last(ctx, key)
	if err != nil {
		return nil, combat.PersistenceError("read attune cooldown", err)
	}
	if ok {
		if ready := last.Add(a.cooldown); now.Before(ready) {
			return nil, combat.ErrOnCooldown.WithMessage("attune available in %s", ready.Sub(now).Round(time.Second))
		}
	}

	rarity, err := SelectWeighted(a.rng, a.availableWeights())
	if err != nil {
		return nil, err
	}

	var pool []combat.Eidolon
	for _, e := range a.catalog {
		if e.Rarity == rarity {
			pool = append(pool, e)
		}
	}
	eidolon := pool[a.rng.IntN(len(pool))]

	if err := a.store.GrantEidolon(ctx, playerID, eidolon); err != nil {
		a.logger.Error("Failed to grant eidolon", "player_id", playerID, "eidolon_id", eidolon.ID, "error", err)
		return nil, combat.PersistenceError("grant eidolon", err)
	}
	if err := a.cooldowns.Mark(ctx, key, now, a.cooldown); err != nil {
		return nil, combat.PersistenceError("write attune cooldown", err)
	}

	a.logger.Info("Eidolon attuned", "player_id", playerID, "eidolon_id", eidolon.ID, "rarity", rarity)

	return &AttuneResult{
		Eidolon:      eidolon,
		NextAttuneAt: now.Add(a.cooldown),
	}, nil
}

// availableWeights zeroes rarities with no catalog entries so they are never drawn.
func (a *Attuner) availableWeights() Weights {
	present := make(map[string]bool)
	for _, e := range a.catalog {
		present[e.Rarity] = true
	}
	w := make(Weights, 0, len(a.weights))
	for _, item := range a.weights {
		if !present[item.Label] {
			item.Weight = 0
		}
		w = append(w, item)
	}
	return w
}
