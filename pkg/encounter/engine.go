// Package encounter runs the PvE scan -> weave flow for a single player.
//
// A player starts an encounter, may scan it for a hint, and weaves patterns
// until one matches the encounter's weakness. A matching weave pays out and
// ends the encounter; a miss deals chip damage and leaves it active.
package encounter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/pattern"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/session"
	"github.com/jwebster45206/weave-arena/pkg/storage"
)

// LevelAllowance is how far above the player's level an encounter may be.
const LevelAllowance = 2

// View is the public face of an encounter; it never carries the weakness pattern.
type View struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Difficulty int    `json:"difficulty"`
	Rarity     string `json:"rarity"`
}

func viewOf(e combat.Encounter) View {
	return View{ID: e.ID, Name: e.Name, Difficulty: e.Difficulty, Rarity: e.Rarity}
}

// ScanResult carries the weakness hint. Hint text is returned verbatim and may
// contain escaped newlines for the renderer to handle.
type ScanResult struct {
	Encounter View   `json:"encounter"`
	Hint      string `json:"hint"`
}

// WeaveResult is the outcome of one weave attempt.
type WeaveResult struct {
	Encounter View                     `json:"encounter"`
	Success   bool                     `json:"success"`
	Damage    int                      `json:"damage"`
	Rewards   *rewards.DetailedRewards `json:"rewards"`
	Attempts  int                      `json:"attempts"`
	Cleared   bool                     `json:"cleared"`
	Message   string                   `json:"message"`
}

// Engine orchestrates encounters. Scan and Weave for one player are serialized.
type Engine struct {
	store    storage.Persistence
	sessions session.Store
	resolver *rewards.Resolver
	weights  map[string]int
	rng      gacha.Rand
	now      func() time.Time
	locks    *session.KeyLock
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

func WithRand(rng gacha.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithRarityWeights sets the rarity -> weight table used to pick encounters.
func WithRarityWeights(w map[string]int) Option {
	return func(e *Engine) { e.weights = w }
}

// NewEngine creates an encounter engine.
func NewEngine(store storage.Persistence, sessions session.Store, resolver *rewards.Resolver, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		sessions: sessions,
		resolver: resolver,
		weights:  combat.DefaultRarityWeights,
		rng:      gacha.NewRand(),
		now:      time.Now,
		locks:    session.NewKeyLock(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// StartForPlayer starts an encounter using the level from the player's profile.
func (e *Engine) StartForPlayer(ctx context.Context, playerID string) (*View, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, combat.ErrInvalidPlayerID
	}
	player, err := e.store.GetPlayer(ctx, playerID)
	if err != nil {
		return nil, combat.PersistenceError("load player", err)
	}
	if player == nil {
		return nil, combat.ErrPlayerNotFound
	}
	return e.Start(ctx, playerID, player.Level)
}

// Start selects an encounter of difficulty <= playerLevel+LevelAllowance and
// makes it the player's active encounter.
func (e *Engine) Start(ctx context.Context, playerID string, playerLevel int) (*View, error) {
	if strings.TrimSpace(playerID) == "" {
		return nil, combat.ErrInvalidPlayerID
	}

	existing, err := e.sessions.Get(ctx, playerID, session.KindEncounter)
	if err != nil {
		return nil, combat.PersistenceError("load session", err)
	}
	if existing != nil {
		return nil, combat.ErrAlreadyActive.WithMessage("encounter %s already active", existing.Encounter.Encounter.ID)
	}

	chosen, err := e.selectEncounter(ctx, playerLevel+LevelAllowance)
	if err != nil {
		return nil, err
	}

	s := session.Session{
		PlayerID:  playerID,
		Kind:      session.KindEncounter,
		Encounter: &session.EncounterState{Encounter: chosen},
		StartedAt: e.now(),
	}
	if err := e.sessions.TryStart(ctx, s); err != nil {
		if errors.Is(err, combat.ErrAlreadyActive) {
			return nil, err
		}
		return nil, combat.PersistenceError("start session", err)
	}

	e.logger.Info("Encounter started",
		"player_id", playerID,
		"encounter_id", chosen.ID,
		"difficulty", chosen.Difficulty,
		"rarity", chosen.Rarity)

	v := viewOf(chosen)
	return &v, nil
}

// selectEncounter draws one eligible encounter weighted by its rarity.
// Rarities missing from the weight table count as weight 1.
func (e *Engine) selectEncounter(ctx context.Context, maxDifficulty int) (combat.Encounter, error) {
	eligible, err := e.store.ListEncounters(ctx, maxDifficulty)
	if err != nil {
		return combat.Encounter{}, combat.PersistenceError("list encounters", err)
	}

	byID := make(map[string]combat.Encounter, len(eligible))
	weights := make(map[string]int, len(eligible))
	for _, enc := range eligible {
		if enc.Difficulty > maxDifficulty {
			continue
		}
		w, ok := e.weights[enc.Rarity]
		if !ok {
			w = 1
		}
		byID[enc.ID] = enc
		weights[enc.ID] = w
	}
	if len(byID) == 0 {
		return combat.Encounter{}, combat.ErrNoEligibleEncounter.WithMessage("no encounter at difficulty <= %d", maxDifficulty)
	}

	id, err := gacha.SelectWeighted(e.rng, gacha.FromMap(weights))
	if err != nil {
		return combat.Encounter{}, err
	}
	return byID[id], nil
}

// Active returns the player's active encounter, or nil.
func (e *Engine) Active(ctx context.Context, playerID string) (*View, error) {
	s, err := e.sessions.Get(ctx, playerID, session.KindEncounter)
	if err != nil {
		return nil, combat.PersistenceError("load session", err)
	}
	if s == nil {
		return nil, nil
	}
	v := viewOf(s.Encounter.Encounter)
	return &v, nil
}

func (e *Engine) activeSession(ctx context.Context, playerID string) (*session.Session, error) {
	s, err := e.sessions.Get(ctx, playerID, session.KindEncounter)
	if err != nil {
		return nil, combat.PersistenceError("load session", err)
	}
	if s == nil || s.Encounter == nil {
		return nil, combat.ErrNoActiveEncounter
	}
	return s, nil
}

// Scan reveals the active encounter's weakness hint and records the attempt.
func (e *Engine) Scan(ctx context.Context, playerID string) (*ScanResult, error) {
	unlock := e.locks.Lock(playerID)
	defer unlock()

	s, err := e.activeSession(ctx, playerID)
	if err != nil {
		return nil, err
	}
	enc := s.Encounter.Encounter

	if !s.Encounter.Scanned {
		s.Encounter.Scanned = true
		if err := e.sessions.Update(ctx, *s); err != nil {
			if errors.Is(err, combat.ErrNoActiveSession) {
				return nil, combat.ErrNoActiveEncounter
			}
			return nil, combat.PersistenceError("update session", err)
		}
	}

	if err := e.recordAttempt(ctx, playerID, enc.ID, combat.CombatActionScan, "", true, 0); err != nil {
		return nil, err
	}

	e.logger.Debug("Encounter scanned", "player_id", playerID, "encounter_id", enc.ID)

	return &ScanResult{Encounter: viewOf(enc), Hint: enc.WeaknessHint}, nil
}

// Weave submits a pattern against the active encounter. On a match the
// encounter pays out and ends; otherwise it stays active for another try.
//
// The result is returned together with any persistence error, since the
// in-memory session has already moved on by then.
func (e *Engine) Weave(ctx context.Context, playerID string, input string) (*WeaveResult, error) {
	unlock := e.locks.Lock(playerID)
	defer unlock()

	s, err := e.activeSession(ctx, playerID)
	if err != nil {
		return nil, err
	}
	enc := s.Encounter.Encounter
	attempts := s.Encounter.Attempts + 1

	matched := pattern.Matches(input, enc.WeaknessPattern)
	detail, rewardErr := e.resolver.Resolve(ctx, playerID, rewards.Outcome{Success: matched, Reward: enc.Reward})

	logErr := e.recordAttempt(ctx, playerID, enc.ID, combat.CombatActionWeave, input, matched, detail.Damage)

	var sessionErr error
	if matched {
		sessionErr = e.sessions.Clear(ctx, playerID, session.KindEncounter)
	} else {
		s.Encounter.Attempts = attempts
		sessionErr = e.sessions.Update(ctx, *s)
		if errors.Is(sessionErr, combat.ErrNoActiveSession) {
			sessionErr = nil
		}
	}
	if sessionErr != nil {
		sessionErr = combat.PersistenceError("update session", sessionErr)
	}

	e.logger.Info("Weave attempted",
		"player_id", playerID,
		"encounter_id", enc.ID,
		"success", matched,
		"damage", detail.Damage,
		"attempts", attempts)

	result := &WeaveResult{
		Encounter: viewOf(enc),
		Success:   matched,
		Damage:    detail.Damage,
		Rewards:   detail,
		Attempts:  attempts,
		Cleared:   matched,
		Message:   weaveMessage(enc, matched, detail.Damage),
	}
	return result, errors.Join(rewardErr, logErr, sessionErr)
}

func (e *Engine) recordAttempt(ctx context.Context, playerID, encounterID string, action combat.CombatAction, input string, success bool, damage int) error {
	entry := combat.CombatLogEntry{
		ID:          uuid.New(),
		PlayerID:    playerID,
		EncounterID: encounterID,
		Action:      action,
		Pattern:     input,
		Success:     success,
		Damage:      damage,
		CreatedAt:   e.now(),
	}
	if err := e.store.RecordCombatLog(ctx, entry); err != nil {
		e.logger.Error("Failed to record combat log", "player_id", playerID, "encounter_id", encounterID, "error", err)
		return combat.PersistenceError("record combat log", err)
	}
	return nil
}

func weaveMessage(enc combat.Encounter, matched bool, damage int) string {
	if matched {
		return fmt.Sprintf("Your weave exploits %s's weakness for %d damage.", enc.Name, damage)
	}
	return fmt.Sprintf("%s shrugs off the weave, taking only %d damage.", enc.Name, damage)
}
