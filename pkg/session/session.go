// Package session tracks each player's in-flight PvE activity.
//
// A player has at most one active session per Kind. Sessions are ephemeral:
// the memory store loses everything on restart.
package session

import (
	"context"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// Kind identifies the activity a session belongs to.
type Kind string

const (
	KindEncounter Kind = "encounter"
	KindDungeon   Kind = "dungeon"
)

// EncounterState is the payload of an encounter session.
type EncounterState struct {
	Encounter combat.Encounter `json:"encounter"`
	Scanned   bool             `json:"scanned"`
	Attempts  int              `json:"attempts"`
}

// DungeonRun is the payload of a dungeon session.
type DungeonRun struct {
	DungeonID string `json:"dungeon_id"`
	Stage     int    `json:"stage"`
	HP        int    `json:"hp"`
	MaxHP     int    `json:"max_hp"`
}

// Session is one player's active activity of a given kind.
type Session struct {
	PlayerID  string          `json:"player_id"`
	Kind      Kind            `json:"kind"`
	Encounter *EncounterState `json:"encounter,omitempty"`
	Dungeon   *DungeonRun     `json:"dungeon,omitempty"`
	StartedAt time.Time       `json:"started_at"`
	// ExpiresAt is zero for sessions without a wall-clock limit.
	ExpiresAt time.Time `json:"expires_at,omitzero"`
}

// Expired reports whether the session has a deadline at or before now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// clone copies the payload structs so stored sessions never alias a caller's.
func (s Session) clone() Session {
	if s.Encounter != nil {
		e := *s.Encounter
		s.Encounter = &e
	}
	if s.Dungeon != nil {
		d := *s.Dungeon
		s.Dungeon = &d
	}
	return s
}

// Store holds active sessions. Every method is atomic per (player, kind).
type Store interface {
	// TryStart stores s unless the player already has an active session of
	// the same kind, in which case it returns combat.ErrAlreadyActive.
	TryStart(ctx context.Context, s Session) error

	// Get returns the active session, or (nil, nil) when there is none.
	Get(ctx context.Context, playerID string, kind Kind) (*Session, error)

	// Update replaces an existing session. Returns combat.ErrNoActiveSession
	// when the player has none of that kind.
	Update(ctx context.Context, s Session) error

	// Clear removes the session if present.
	Clear(ctx context.Context, playerID string, kind Kind) error
}
