package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CommandType identifies the arena operation a command invokes
type CommandType string

const (
	CommandStartEncounter CommandType = "start_encounter"
	CommandScan           CommandType = "scan"
	CommandWeave          CommandType = "weave"
	CommandAttune         CommandType = "attune"
	CommandChallenge      CommandType = "challenge"
	CommandAccept         CommandType = "accept"
	CommandDecline        CommandType = "decline"
	CommandAct            CommandType = "act"
	CommandEnterDungeon   CommandType = "enter_dungeon"
	CommandAdvanceDungeon CommandType = "advance_dungeon"
	CommandLeaveDungeon   CommandType = "leave_dungeon"
)

// Command is a player request waiting in the command queue
type Command struct {
	RequestID string      `json:"request_id"`
	Type      CommandType `json:"type"`
	PlayerID  string      `json:"player_id"`

	// Encounter fields
	Level   int    `json:"level,omitempty"`
	Pattern string `json:"pattern,omitempty"`

	// Duel fields
	TargetID string    `json:"target_id,omitempty"`
	DuelID   uuid.UUID `json:"duel_id,omitzero"`
	Action   string    `json:"action,omitempty"`

	// Dungeon fields
	DungeonID string `json:"dungeon_id,omitempty"`

	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Validate checks that the command carries the fields its type needs
func (c *Command) Validate() error {
	if c.PlayerID == "" {
		return fmt.Errorf("command %s: player_id is required", c.Type)
	}
	switch c.Type {
	case CommandStartEncounter, CommandScan, CommandAttune, CommandAdvanceDungeon, CommandLeaveDungeon:
		return nil
	case CommandEnterDungeon:
		if c.DungeonID == "" {
			return fmt.Errorf("command %s: dungeon_id is required", c.Type)
		}
	case CommandWeave:
		if c.Pattern == "" {
			return fmt.Errorf("command %s: pattern is required", c.Type)
		}
	case CommandChallenge, CommandAccept, CommandDecline:
		if c.TargetID == "" {
			return fmt.Errorf("command %s: target_id is required", c.Type)
		}
	case CommandAct:
		if c.DuelID == uuid.Nil {
			return fmt.Errorf("command %s: duel_id is required", c.Type)
		}
		if c.Action == "" {
			return fmt.Errorf("command %s: action is required", c.Type)
		}
	default:
		return fmt.Errorf("unknown command type %q", c.Type)
	}
	return nil
}

// ToJSON converts the command to JSON bytes for Redis
func (c *Command) ToJSON() ([]byte, error) {
	return json.Marshal(c)
}

// FromJSON parses a command from JSON bytes
func FromJSON(data []byte) (*Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return nil, err
	}
	return &cmd, nil
}

// Result is what the worker publishes after handling a command
type Result struct {
	RequestID string      `json:"request_id"`
	Type      CommandType `json:"type"`
	PlayerID  string      `json:"player_id"`
	OK        bool        `json:"ok"`
	ErrorCode string      `json:"error_code,omitempty"`
	ErrorKind string      `json:"error_kind,omitempty"`
	Error     string      `json:"error,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	HandledAt time.Time   `json:"handled_at"`
}
