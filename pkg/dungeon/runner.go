// Package dungeon runs multi-stage dungeon delves. A run lives in the
// session store under session.KindDungeon and expires on the wall clock.
package dungeon

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/session"
	"github.com/jwebster45206/weave-arena/pkg/storage"
)

const (
	DefaultRunTTL = 30 * time.Minute
	Stages        = 5
	MaxHP         = 100

	StageDamageMin = 5
	StageDamageMax = 25

	currencyPerStage   = 20
	experiencePerStage = 10
)

// AdvanceResult is the outcome of pushing one stage deeper.
type AdvanceResult struct {
	Run     session.DungeonRun       `json:"run"`
	Damage  int                      `json:"damage"`
	Cleared bool                     `json:"cleared"`
	Failed  bool                     `json:"failed"`
	Rewards *rewards.DetailedRewards `json:"rewards,omitempty"`
}

// Runner manages dungeon runs.
type Runner struct {
	store    storage.Persistence
	sessions session.Store
	resolver *rewards.Resolver
	rng      gacha.Rand
	now      func() time.Time
	ttl      time.Duration
	locks    *session.KeyLock
	logger   *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

func WithRand(rng gacha.Rand) Option {
	return func(r *Runner) { r.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

func WithRunTTL(d time.Duration) Option {
	return func(r *Runner) { r.ttl = d }
}

func NewRunner(store storage.Persistence, sessions session.Store, resolver *rewards.Resolver, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		store:    store,
		sessions: sessions,
		resolver: resolver,
		rng:      gacha.NewRand(),
		now:      time.Now,
		ttl:      DefaultRunTTL,
		locks:    session.NewKeyLock(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enter starts a run of dungeonID at stage 1 with full hp.
func (r *Runner) Enter(ctx context.Context, playerID, dungeonID string) (*session.DungeonRun, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, combat.ErrInvalidPlayerID
	}
	p, err := r.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, combat.PersistenceError("load player", err)
	}
	if p == nil {
		return nil, combat.ErrPlayerNotFound
	}

	now := r.now()
	run := session.DungeonRun{DungeonID: dungeonID, Stage: 1, HP: MaxHP, MaxHP: MaxHP}
	err = r.sessions.TryStart(ctx, session.Session{
		PlayerID:  playerID,
		Kind:      session.KindDungeon,
		Dungeon:   &run,
		StartedAt: now,
		ExpiresAt: now.Add(r.ttl),
	})
	if errors.Is(err, combat.ErrAlreadyActive) {
		return nil, err
	}
	if err != nil {
		return nil, combat.PersistenceError("start dungeon run", err)
	}

	r.logger.Info("Dungeon run started", "player_id", playerID, "dungeon_id", dungeonID, "expires_at", now.Add(r.ttl))
	return &run, nil
}

// Status returns the player's live run, or nil.
func (r *Runner) Status(ctx context.Context, playerID string) (*session.DungeonRun, error) {
	s, err := r.sessions.Get(ctx, playerID, session.KindDungeon)
	if err != nil {
		return nil, combat.PersistenceError("load dungeon run", err)
	}
	if s == nil || s.Dungeon == nil {
		return nil, nil
	}
	run := *s.Dungeon
	return &run, nil
}

// Advance clears the current stage. Each stage costs hp; reaching zero
// fails the run, passing the last stage clears it and pays out.
func (r *Runner) Advance(ctx context.Context, playerID string) (*AdvanceResult, error) {
	unlock := r.locks.Lock(playerID)
	defer unlock()

	s, err := r.sessions.Get(ctx, playerID, session.KindDungeon)
	if err != nil {
		return nil, combat.PersistenceError("load dungeon run", err)
	}
	if s == nil || s.Dungeon == nil {
		return nil, combat.ErrNoActiveSession.WithMessage("no dungeon run in progress")
	}
	run := s.Dungeon

	damage := rewards.RollRange(r.rng, StageDamageMin, StageDamageMax)
	run.HP = max(run.HP-damage, 0)
	res := &AdvanceResult{Damage: damage}

	switch {
	case run.HP == 0:
		res.Failed = true
		res.Run = *run
		r.logger.Info("Dungeon run failed", "player_id", playerID, "dungeon_id", run.DungeonID, "stage", run.Stage)
		if err := r.sessions.Clear(ctx, playerID, session.KindDungeon); err != nil {
			return res, combat.PersistenceError("clear dungeon run", err)
		}
		return res, nil

	case run.Stage >= Stages:
		res.Cleared = true
		res.Run = *run
		res.Rewards = &rewards.DetailedRewards{
			Success:    true,
			Currency:   currencyPerStage * Stages,
			Experience: experiencePerStage * Stages,
		}
		clearErr := r.sessions.Clear(ctx, playerID, session.KindDungeon)
		applyErr := r.resolver.Apply(ctx, playerID, res.Rewards)
		r.logger.Info("Dungeon run cleared", "player_id", playerID, "dungeon_id", run.DungeonID)
		return res, errors.Join(combat.PersistenceError("clear dungeon run", clearErr), applyErr)
	}

	run.Stage++
	res.Run = *run
	if err := r.sessions.Update(ctx, *s); err != nil {
		if errors.Is(err, combat.ErrNoActiveSession) {
			return nil, err
		}
		return nil, combat.PersistenceError("update dungeon run", err)
	}
	return res, nil
}

// Leave abandons the current run without rewards.
func (r *Runner) Leave(ctx context.Context, playerID string) error {
	unlock := r.locks.Lock(playerID)
	defer unlock()
	if err := r.sessions.Clear(ctx, playerID, session.KindDungeon); err != nil {
		return combat.PersistenceError("clear dungeon run", err)
	}
	return nil
}
