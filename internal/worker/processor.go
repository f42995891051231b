package worker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/weave-arena/pkg/duel"
	"github.com/jwebster45206/weave-arena/pkg/dungeon"
	"github.com/jwebster45206/weave-arena/pkg/encounter"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/queue"
)

// CommandProcessor maps queued commands onto the arena engines.
type CommandProcessor struct {
	encounters *encounter.Engine
	duels      *duel.Engine
	attuner    *gacha.Attuner
	dungeons   *dungeon.Runner
	logger     *slog.Logger
}

// NewCommandProcessor creates a new command processor
func NewCommandProcessor(
	encounters *encounter.Engine,
	duels *duel.Engine,
	attuner *gacha.Attuner,
	dungeons *dungeon.Runner,
	logger *slog.Logger,
) *CommandProcessor {
	return &CommandProcessor{
		encounters: encounters,
		duels:      duels,
		attuner:    attuner,
		dungeons:   dungeons,
		logger:     logger,
	}
}

// Process runs cmd and returns the value to report back to the player.
// Some operations return a payload together with a persistence error; both
// are passed through.
func (p *CommandProcessor) Process(ctx context.Context, cmd *queue.Command) (any, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	switch cmd.Type {
	case queue.CommandStartEncounter:
		if cmd.Level > 0 {
			return payload(p.encounters.Start(ctx, cmd.PlayerID, cmd.Level))
		}
		return payload(p.encounters.StartForPlayer(ctx, cmd.PlayerID))

	case queue.CommandScan:
		return payload(p.encounters.Scan(ctx, cmd.PlayerID))

	case queue.CommandWeave:
		return payload(p.encounters.Weave(ctx, cmd.PlayerID, cmd.Pattern))

	case queue.CommandAttune:
		return payload(p.attuner.Attune(ctx, cmd.PlayerID))

	case queue.CommandChallenge:
		return payload(p.duels.Challenge(ctx, cmd.PlayerID, cmd.TargetID))

	case queue.CommandAccept:
		return payload(p.duels.Accept(ctx, cmd.PlayerID, cmd.TargetID))

	case queue.CommandDecline:
		if err := p.duels.Decline(ctx, cmd.PlayerID, cmd.TargetID); err != nil {
			return nil, err
		}
		return map[string]string{"declined": cmd.TargetID}, nil

	case queue.CommandAct:
		action, err := duel.ParseAction(cmd.Action)
		if err != nil {
			return nil, err
		}
		return payload(p.duels.Act(ctx, cmd.PlayerID, cmd.DuelID, action))

	case queue.CommandEnterDungeon:
		return payload(p.dungeons.Enter(ctx, cmd.PlayerID, cmd.DungeonID))

	case queue.CommandAdvanceDungeon:
		return payload(p.dungeons.Advance(ctx, cmd.PlayerID))

	case queue.CommandLeaveDungeon:
		if err := p.dungeons.Leave(ctx, cmd.PlayerID); err != nil {
			return nil, err
		}
		return map[string]bool{"left": true}, nil

	default:
		return nil, fmt.Errorf("unknown command type: %s", cmd.Type)
	}
}

// payload drops typed nil pointers so callers can test the result against nil.
func payload[T any](v *T, err error) (any, error) {
	if v == nil {
		return nil, err
	}
	return v, err
}
