package duel

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// MaxHP is every combatant's starting and maximum hp.
const MaxHP = 100

// DefaultChallengeTTL is how long a challenge stays pending.
const DefaultChallengeTTL = 5 * time.Minute

// Action is a duel move.
type Action string

const (
	ActionAttack Action = "attack"
	ActionDefend Action = "defend"
	ActionSkill  Action = "skill"
)

// ParseAction validates a free-form action name.
func ParseAction(s string) (Action, error) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAttack, ActionDefend, ActionSkill:
		return a, nil
	default:
		return "", combat.ErrInvalidAction.WithMessage("unknown duel action %q", s)
	}
}

// Damage ranges per action, inclusive.
type damageRange struct{ min, max int }

var (
	attackDamage        = damageRange{10, 30}
	defendDamage        = damageRange{5, 15}
	skillDamage         = damageRange{15, 40}
	skillFallbackDamage = damageRange{5, 20}
)

// ChallengeStatus is the lifecycle state of a challenge. Only pending
// challenges are ever stored.
type ChallengeStatus string

const ChallengePending ChallengeStatus = "pending"

// Challenge is a time-boxed invitation to duel.
type Challenge struct {
	ID           uuid.UUID       `json:"id"`
	ChallengerID string          `json:"challenger_id"`
	TargetID     string          `json:"target_id"`
	Status       ChallengeStatus `json:"status"`
	IssuedAt     time.Time       `json:"issued_at"`
	ExpiresAt    time.Time       `json:"expires_at"`
}

func (c *Challenge) expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// pairKey identifies the unordered pair {a, b}.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// Combatant is one side of a duel.
type Combatant struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"display_name"`
	HP          int      `json:"hp"`
	MaxHP       int      `json:"max_hp"`
	Abilities   []string `json:"abilities,omitempty"`
}

// newCombatant builds a full-hp combatant whose abilities come from the
// player's eidolons in ownership order.
func newCombatant(p *combat.Player, eidolons []combat.Eidolon) Combatant {
	var abilities []string
	for _, e := range eidolons {
		abilities = append(abilities, e.Abilities...)
	}
	return Combatant{
		ID:          p.ID,
		DisplayName: p.Name(),
		HP:          MaxHP,
		MaxHP:       MaxHP,
		Abilities:   abilities,
	}
}

// PrimaryAbility returns the first usable ability name.
func (c *Combatant) PrimaryAbility() (string, bool) {
	for _, a := range c.Abilities {
		if strings.TrimSpace(a) != "" {
			return a, true
		}
	}
	return "", false
}

// TakeDamage reduces hp by n, never below 0, and returns the damage applied.
func (c *Combatant) TakeDamage(n int) int {
	if n < 0 {
		n = 0
	}
	if n > c.HP {
		n = c.HP
	}
	c.HP -= n
	return n
}

// IsDefeated returns true if the combatant's hp is 0 or less.
func (c *Combatant) IsDefeated() bool {
	return c.HP <= 0
}

// Duel is a snapshot of a two-party turn-based fight.
type Duel struct {
	ID         uuid.UUID    `json:"id"`
	Combatants [2]Combatant `json:"combatants"`
	Turn       string       `json:"turn"`
	Round      int          `json:"round"`
	StartedAt  time.Time    `json:"started_at"`
}

// combatant returns the combatant with id and its opponent.
func (d *Duel) combatant(id string) (self *Combatant, other *Combatant, ok bool) {
	switch id {
	case d.Combatants[0].ID:
		return &d.Combatants[0], &d.Combatants[1], true
	case d.Combatants[1].ID:
		return &d.Combatants[1], &d.Combatants[0], true
	}
	return nil, nil, false
}

// Combatant returns a copy of the combatant with id.
func (d *Duel) Combatant(id string) (Combatant, bool) {
	self, _, ok := d.combatant(id)
	if !ok {
		return Combatant{}, false
	}
	return *self, true
}

// snapshot copies d so callers never share ability slices with live state.
func snapshot(d Duel) Duel {
	for i := range d.Combatants {
		d.Combatants[i].Abilities = slices.Clone(d.Combatants[i].Abilities)
	}
	return d
}

func (d *Duel) String() string {
	a, b := d.Combatants[0], d.Combatants[1]
	return fmt.Sprintf("duel %s round %d: %s %d/%d vs %s %d/%d (turn %s)",
		d.ID, d.Round, a.ID, a.HP, a.MaxHP, b.ID, b.HP, b.MaxHP, d.Turn)
}

// ActionResult is the outcome of one Act call.
type ActionResult struct {
	DuelID   uuid.UUID `json:"duel_id"`
	ActorID  string    `json:"actor_id"`
	TargetID string    `json:"target_id"`
	Action   Action    `json:"action"`
	Ability  string    `json:"ability,omitempty"`
	Damage   int       `json:"damage"`
	TargetHP int       `json:"target_hp"`
	Round    int       `json:"round"`
	NextTurn string    `json:"next_turn,omitempty"`
	Finished bool      `json:"finished"`
	WinnerID string    `json:"winner_id,omitempty"`
	LoserID  string    `json:"loser_id,omitempty"`
	// Settlement is set when the duel finished, even if applying it failed.
	Settlement *combat.BattleResult `json:"settlement,omitempty"`
	Message    string               `json:"message"`
}
