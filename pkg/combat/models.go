package combat

import (
	"time"

	"github.com/google/uuid"
)

// Rarity labels shared by encounters and eidolons.
const (
	RarityCommon    = "common"
	RarityUncommon  = "uncommon"
	RarityRare      = "rare"
	RarityEpic      = "epic"
	RarityLegendary = "legendary"
)

// DefaultRarityWeights is the rarity table used for both encounter selection
// and attunement unless configured otherwise.
var DefaultRarityWeights = map[string]int{
	RarityCommon:    60,
	RarityUncommon:  25,
	RarityRare:      10,
	RarityEpic:      4,
	RarityLegendary: 1,
}

// RewardSpec describes what an encounter pays out on success
type RewardSpec struct {
	Currency       int      `json:"currency"`
	Experience     int      `json:"experience"`
	ItemDropChance float64  `json:"item_drop_chance"`
	ItemRefs       []string `json:"item_refs,omitempty"`
}

// Encounter is a PvE opponent with a hidden weakness pattern.
// Encounters are owned by persistence and read-only here.
type Encounter struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Difficulty      int        `json:"difficulty"`
	Rarity          string     `json:"rarity"`
	WeaknessPattern string     `json:"weakness_pattern"`
	WeaknessHint    string     `json:"weakness_hint"`
	Reward          RewardSpec `json:"reward"`
}

// Eidolon is a collectible companion. Owning at least one is required to duel.
type Eidolon struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Rarity    string   `json:"rarity"`
	Abilities []string `json:"abilities,omitempty"`
}

// Player is the persisted profile as seen by the combat core.
type Player struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
	Currency    int    `json:"currency"`
	Experience  int    `json:"experience"`
	Wins        int    `json:"wins"`
	Losses      int    `json:"losses"`
}

// Name returns the display name, falling back to the id.
func (p *Player) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.ID
}

// CurrencyDelta is a signed change to a player's balances.
type CurrencyDelta struct {
	Currency int `json:"currency"`
}

// ItemGrant is one item awarded to a player.
type ItemGrant struct {
	ItemRef  string `json:"item_ref"`
	Quantity int    `json:"quantity"`
}

// CombatAction names the kind of attempt recorded in the combat log.
type CombatAction string

const (
	CombatActionScan  CombatAction = "scan"
	CombatActionWeave CombatAction = "weave"
)

// CombatLogEntry is the audit record written for every scan and weave attempt.
type CombatLogEntry struct {
	ID          uuid.UUID    `json:"id"`
	PlayerID    string       `json:"player_id"`
	EncounterID string       `json:"encounter_id"`
	Action      CombatAction `json:"action"`
	Pattern     string       `json:"pattern,omitempty"`
	Success     bool         `json:"success"`
	Damage      int          `json:"damage"`
	CreatedAt   time.Time    `json:"created_at"`
}

// DuelOutcome is the per-player result of a finished duel.
type DuelOutcome string

const (
	DuelOutcomeWin  DuelOutcome = "win"
	DuelOutcomeLoss DuelOutcome = "loss"
)

// BattleRewards records the balances moved for both sides of a duel.
type BattleRewards struct {
	WinnerCurrency   int `json:"winner_currency"`
	WinnerExperience int `json:"winner_experience"`
	LoserCurrency    int `json:"loser_currency"`
	LoserExperience  int `json:"loser_experience"`
}

// BattleResult is the persisted history row for a finished duel.
type BattleResult struct {
	DuelID   uuid.UUID     `json:"duel_id"`
	WinnerID string        `json:"winner_id"`
	LoserID  string        `json:"loser_id"`
	Rounds   int           `json:"rounds"`
	Rewards  BattleRewards `json:"rewards"`
	EndedAt  time.Time     `json:"ended_at"`
}
