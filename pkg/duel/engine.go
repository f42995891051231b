// Package duel runs PvP challenges and turn-based duels.
//
// A challenge is pending for a limited time and can be accepted or declined
// by its target. Accepting promotes it to a duel where the two combatants
// alternate actions until one of them is out of hp. Finished duels are
// removed from memory before their rewards are settled.
package duel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/schedule"
	"github.com/jwebster45206/weave-arena/pkg/storage"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// SettlementOutbox receives duel results whose settlement failed so they can
// be retried later.
type SettlementOutbox interface {
	Push(ctx context.Context, result combat.BattleResult) error
}

type activeDuel struct {
	mu    sync.Mutex
	duel  Duel
	ended bool
}

// Engine owns all pending challenges and active duels of the process.
type Engine struct {
	mu         sync.Mutex
	challenges map[string]*Challenge
	duels      map[uuid.UUID]*activeDuel
	byPlayer   map[string]uuid.UUID

	store        storage.Persistence
	resolver     *rewards.Resolver
	scheduler    *schedule.Queue
	outbox       SettlementOutbox
	rng          gacha.Rand
	challengeTTL time.Duration
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithRand(rng gacha.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func WithChallengeTTL(d time.Duration) Option {
	return func(e *Engine) { e.challengeTTL = d }
}

// WithOutbox routes failed settlements to outbox for retry.
func WithOutbox(outbox SettlementOutbox) Option {
	return func(e *Engine) { e.outbox = outbox }
}

// NewEngine creates a duel engine. Challenge expiry is scheduled on scheduler,
// whose clock is also the engine's clock.
func NewEngine(store storage.Persistence, resolver *rewards.Resolver, scheduler *schedule.Queue, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		challenges:   make(map[string]*Challenge),
		duels:        make(map[uuid.UUID]*activeDuel),
		byPlayer:     make(map[string]uuid.UUID),
		store:        store,
		resolver:     resolver,
		scheduler:    scheduler,
		rng:          gacha.NewRand(),
		challengeTTL: DefaultChallengeTTL,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) loadPlayer(ctx context.Context, id string) (*combat.Player, error) {
	if strings.TrimSpace(id) == "" {
		return nil, combat.ErrInvalidPlayerID
	}
	p, err := e.store.GetPlayer(ctx, id)
	if err != nil {
		return nil, combat.PersistenceError("load player", err)
	}
	if p == nil {
		return nil, combat.ErrPlayerNotFound.WithMessage("player %s has no profile", id)
	}
	return p, nil
}

// pendingLocked returns the live challenge for key, dropping it if expired.
// Caller holds e.mu.
func (e *Engine) pendingLocked(key string, now time.Time) *Challenge {
	c, ok := e.challenges[key]
	if !ok {
		return nil
	}
	if c.expired(now) {
		delete(e.challenges, key)
		return nil
	}
	return c
}

// Challenge issues a pending challenge from challengerID to targetID.
func (e *Engine) Challenge(ctx context.Context, challengerID, targetID string) (*Challenge, error) {
	if challengerID == targetID {
		return nil, combat.ErrSelfTarget
	}
	if _, err := e.loadPlayer(ctx, challengerID); err != nil {
		return nil, err
	}
	if _, err := e.loadPlayer(ctx, targetID); err != nil {
		return nil, err
	}

	now := e.scheduler.Now()
	key := pairKey(challengerID, targetID)

	e.mu.Lock()
	if existing := e.pendingLocked(key, now); existing != nil {
		e.mu.Unlock()
		return nil, combat.ErrDuplicateChallenge
	}
	c := &Challenge{
		ID:           uuid.New(),
		ChallengerID: challengerID,
		TargetID:     targetID,
		Status:       ChallengePending,
		IssuedAt:     now,
		ExpiresAt:    now.Add(e.challengeTTL),
	}
	e.challenges[key] = c
	e.mu.Unlock()

	id := c.ID
	e.scheduler.At(c.ExpiresAt, "challenge-expiry", func() {
		e.expireChallenge(key, id)
	})

	e.logger.Info("Challenge issued",
		"challenge_id", c.ID,
		"challenger_id", challengerID,
		"target_id", targetID,
		"expires_at", c.ExpiresAt)

	cp := *c
	return &cp, nil
}

// expireChallenge removes the challenge if it is still the one that was scheduled.
func (e *Engine) expireChallenge(key string, id uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.challenges[key]; ok && c.ID == id {
		delete(e.challenges, key)
		e.logger.Debug("Challenge expired", "challenge_id", id, "challenger_id", c.ChallengerID, "target_id", c.TargetID)
	}
}

// matchingChallenge returns the pending challenge from challengerID to targetID.
func (e *Engine) matchingChallenge(targetID, challengerID string) (Challenge, error) {
	now := e.scheduler.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	c := e.pendingLocked(pairKey(challengerID, targetID), now)
	if c == nil || c.ChallengerID != challengerID || c.TargetID != targetID {
		return Challenge{}, combat.ErrNoPendingChallenge.WithMessage("no pending challenge from %s to %s", challengerID, targetID)
	}
	return *c, nil
}

// Accept promotes the pending challenge from challengerID to a duel.
// Both players must own at least one eidolon.
func (e *Engine) Accept(ctx context.Context, targetID, challengerID string) (*Duel, error) {
	c, err := e.matchingChallenge(targetID, challengerID)
	if err != nil {
		return nil, err
	}

	challenger, err := e.loadPlayer(ctx, challengerID)
	if err != nil {
		return nil, err
	}
	target, err := e.loadPlayer(ctx, targetID)
	if err != nil {
		return nil, err
	}
	challengerEidolons, err := e.store.ListEidolons(ctx, challengerID)
	if err != nil {
		return nil, combat.PersistenceError("list eidolons", err)
	}
	targetEidolons, err := e.store.ListEidolons(ctx, targetID)
	if err != nil {
		return nil, combat.PersistenceError("list eidolons", err)
	}
	if len(challengerEidolons) == 0 {
		return nil, combat.ErrInsufficientAssets.WithMessage("%s has no eidolons", challenger.Name())
	}
	if len(targetEidolons) == 0 {
		return nil, combat.ErrInsufficientAssets.WithMessage("%s has no eidolons", target.Name())
	}

	now := e.scheduler.Now()
	d := Duel{
		ID: uuid.New(),
		Combatants: [2]Combatant{
			newCombatant(challenger, challengerEidolons),
			newCombatant(target, targetEidolons),
		},
		Turn:      challengerID,
		Round:     1,
		StartedAt: now,
	}

	e.mu.Lock()
	key := pairKey(challengerID, targetID)
	current := e.pendingLocked(key, now)
	if current == nil || current.ID != c.ID {
		e.mu.Unlock()
		return nil, combat.ErrNoPendingChallenge.WithMessage("challenge from %s to %s is no longer pending", challengerID, targetID)
	}
	for _, id := range []string{challengerID, targetID} {
		if _, busy := e.byPlayer[id]; busy {
			e.mu.Unlock()
			return nil, combat.ErrAlreadyInDuel.WithMessage("%s is already in a duel", id)
		}
	}
	delete(e.challenges, key)
	e.duels[d.ID] = &activeDuel{duel: d}
	e.byPlayer[challengerID] = d.ID
	e.byPlayer[targetID] = d.ID
	e.mu.Unlock()

	e.logger.Info("Duel started",
		"duel_id", d.ID,
		"challenge_id", c.ID,
		"challenger_id", challengerID,
		"target_id", targetID)

	out := snapshot(d)
	return &out, nil
}

// Decline removes the pending challenge from challengerID.
func (e *Engine) Decline(ctx context.Context, targetID, challengerID string) error {
	c, err := e.matchingChallenge(targetID, challengerID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	key := pairKey(challengerID, targetID)
	if current, ok := e.challenges[key]; ok && current.ID == c.ID {
		delete(e.challenges, key)
	}
	e.mu.Unlock()

	e.logger.Info("Challenge declined", "challenge_id", c.ID, "challenger_id", challengerID, "target_id", targetID)
	return nil
}

// Act applies actorID's action to the duel. Acts on one duel are applied
// one at a time in the order they acquire the duel.
//
// When the action finishes the duel, the duel is removed and settled. A
// settlement failure is returned alongside the result and, if an outbox is
// configured, queued for retry; the finished duel is not restored.
func (e *Engine) Act(ctx context.Context, actorID string, duelID uuid.UUID, action Action) (*ActionResult, error) {
	action, err := ParseAction(string(action))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	ad, ok := e.duels[duelID]
	e.mu.Unlock()
	if !ok {
		return nil, combat.ErrDuelNotFound
	}

	ad.mu.Lock()
	if ad.ended {
		ad.mu.Unlock()
		return nil, combat.ErrDuelNotFound
	}
	d := &ad.duel
	actor, defender, ok := d.combatant(actorID)
	if !ok {
		ad.mu.Unlock()
		return nil, combat.ErrNotYourTurn.WithMessage("%s is not part of this duel", actorID)
	}
	if d.Turn != actorID {
		ad.mu.Unlock()
		return nil, combat.ErrNotYourTurn
	}

	rolled, ability := e.rollDamage(actor, action)
	damage := defender.TakeDamage(rolled)

	result := &ActionResult{
		DuelID:   d.ID,
		ActorID:  actor.ID,
		TargetID: defender.ID,
		Action:   action,
		Ability:  ability,
		Damage:   damage,
		TargetHP: defender.HP,
		Round:    d.Round,
	}
	result.Message = actionMessage(actor, defender, action, ability, damage)

	if !defender.IsDefeated() {
		d.Round++
		d.Turn = defender.ID
		result.NextTurn = d.Turn
		ad.mu.Unlock()
		return result, nil
	}

	ad.ended = true
	rounds := d.Round
	winnerID, loserID := actor.ID, defender.ID
	result.Message += fmt.Sprintf(" %s is defeated!", defender.DisplayName)
	ad.mu.Unlock()

	e.mu.Lock()
	delete(e.duels, duelID)
	delete(e.byPlayer, winnerID)
	delete(e.byPlayer, loserID)
	e.mu.Unlock()

	settlement := rewards.NewBattleResult(duelID, winnerID, loserID, rounds, e.scheduler.Now())
	result.Finished = true
	result.WinnerID = winnerID
	result.LoserID = loserID
	result.Settlement = &settlement

	e.logger.Info("Duel finished", "duel_id", duelID, "winner_id", winnerID, "loser_id", loserID, "rounds", rounds)

	if err := e.resolver.SettleDuel(ctx, settlement); err != nil {
		return result, e.deferSettlement(ctx, settlement, err)
	}
	return result, nil
}

// deferSettlement hands a failed settlement to the outbox and returns the
// error to report to the caller.
func (e *Engine) deferSettlement(ctx context.Context, settlement combat.BattleResult, settleErr error) error {
	if e.outbox == nil {
		return settleErr
	}
	if err := e.outbox.Push(ctx, settlement); err != nil {
		e.logger.Error("Failed to queue settlement for retry", "duel_id", settlement.DuelID, "error", err)
		return errors.Join(settleErr, combat.PersistenceError("queue settlement", err))
	}
	e.logger.Warn("Settlement queued for retry", "duel_id", settlement.DuelID)
	return settleErr
}

func (e *Engine) rollDamage(actor *Combatant, action Action) (int, string) {
	switch action {
	case ActionAttack:
		return rewards.RollRange(e.rng, attackDamage.min, attackDamage.max), ""
	case ActionDefend:
		return rewards.RollRange(e.rng, defendDamage.min, defendDamage.max), ""
	case ActionSkill:
		if ability, ok := actor.PrimaryAbility(); ok {
			return rewards.RollRange(e.rng, skillDamage.min, skillDamage.max), ability
		}
		return rewards.RollRange(e.rng, skillFallbackDamage.min, skillFallbackDamage.max), ""
	}
	// Unreachable once the action has been through ParseAction.
	return 0, ""
}

func actionMessage(actor, defender *Combatant, action Action, ability string, damage int) string {
	switch action {
	case ActionAttack:
		return fmt.Sprintf("%s strikes %s for %d damage.", actor.DisplayName, defender.DisplayName, damage)
	case ActionDefend:
		return fmt.Sprintf("%s braces and counters %s for %d damage.", actor.DisplayName, defender.DisplayName, damage)
	}
	if ability == "" {
		return fmt.Sprintf("%s improvises against %s for %d damage.", actor.DisplayName, defender.DisplayName, damage)
	}
	// Casers are stateful; build one per call.
	name := cases.Title(language.English).String(ability)
	return fmt.Sprintf("%s unleashes %s on %s for %d damage.", actor.DisplayName, name, defender.DisplayName, damage)
}

// Duel returns a snapshot of an active duel.
func (e *Engine) Duel(duelID uuid.UUID) (*Duel, bool) {
	e.mu.Lock()
	ad, ok := e.duels[duelID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if ad.ended {
		return nil, false
	}
	d := snapshot(ad.duel)
	return &d, true
}

// ActiveDuel returns the duel playerID is currently in, if any.
func (e *Engine) ActiveDuel(playerID string) (*Duel, bool) {
	e.mu.Lock()
	id, ok := e.byPlayer[playerID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e.Duel(id)
}

// PendingChallenges lists live challenges issued by or to playerID.
func (e *Engine) PendingChallenges(playerID string) []Challenge {
	now := e.scheduler.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []Challenge
	for key := range e.challenges {
		c := e.pendingLocked(key, now)
		if c == nil {
			continue
		}
		if c.ChallengerID == playerID || c.TargetID == playerID {
			out = append(out, *c)
		}
	}
	return out
}
