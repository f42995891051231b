package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/internal/logger"
	"github.com/jwebster45206/weave-arena/internal/services/events"
	"github.com/jwebster45206/weave-arena/internal/services/queue"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/duel"
	queuePkg "github.com/jwebster45206/weave-arena/pkg/queue"
	"github.com/jwebster45206/weave-arena/pkg/schedule"
	"github.com/redis/go-redis/v9"
)

const (
	workerTimeout      = 5 * time.Second
	playerLockTTL      = 30 * time.Second
	settlementsPerTick = 20
)

// releaseLockScript deletes the lock only if we still own it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// SettleFunc applies a deferred duel settlement.
type SettleFunc func(ctx context.Context, result combat.BattleResult) error

// Worker processes commands from the arena command queue
type Worker struct {
	id            string
	commands      *queue.CommandQueue
	processor     *CommandProcessor
	outbox        *queue.SettlementOutbox
	settle        SettleFunc
	scheduler     *schedule.Queue
	sweepInterval time.Duration
	broadcaster   *events.Broadcaster
	redisClient   *redis.Client
	log           *slog.Logger
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config wires a Worker to its collaborators.
type Config struct {
	WorkerID      string
	Commands      *queue.CommandQueue
	Processor     *CommandProcessor
	Outbox        *queue.SettlementOutbox
	Settle        SettleFunc
	Scheduler     *schedule.Queue
	SweepInterval time.Duration
	RedisClient   *redis.Client
}

// New creates a new worker instance
func New(cfg Config, log *slog.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	workerID := cfg.WorkerID
	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Second
	}

	return &Worker{
		id:            workerID,
		commands:      cfg.Commands,
		processor:     cfg.Processor,
		outbox:        cfg.Outbox,
		settle:        cfg.Settle,
		scheduler:     cfg.Scheduler,
		sweepInterval: cfg.SweepInterval,
		broadcaster:   events.NewBroadcaster(cfg.RedisClient, log),
		redisClient:   cfg.RedisClient,
		log:           log,
		ctx:           ctx,
		cancel:        cancel,
	}
}

// ID returns the worker's identifier
func (w *Worker) ID() string {
	return w.id
}

// Start runs the background loops and then processes commands until Stop.
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id)

	var wg sync.WaitGroup
	if w.scheduler != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.scheduler.Run(w.ctx, w.sweepInterval)
		}()
	}
	if w.outbox != nil && w.settle != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runSettlementRetries()
		}()
	}

	for {
		select {
		case <-w.ctx.Done():
			wg.Wait()
			w.log.Info("Worker shutting down", "worker_id", w.id)
			return nil
		default:
			if err := w.processNextCommand(); err != nil {
				w.log.Error("Error processing command", "error", err, "worker_id", w.id)
				// Continue processing even on error
				time.Sleep(1 * time.Second)
			}
		}
	}
}

// Stop gracefully shuts down the worker
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

func (w *Worker) runSettlementRetries() {
	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.retrySettlements()
		}
	}
}

func (w *Worker) retrySettlements() int {
	n, err := w.outbox.Retry(w.ctx, settlementsPerTick, w.settle)
	if err != nil {
		w.log.Error("Settlement retry pass failed", "error", err, "worker_id", w.id)
	}
	return n
}

// processNextCommand pulls the next command from the queue and processes it
func (w *Worker) processNextCommand() error {
	cmd, err := w.commands.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("failed to dequeue command: %w", err)
	}
	if cmd == nil {
		// Timeout with an empty queue
		return nil
	}

	w.log.Info("Received command from queue",
		"worker_id", w.id,
		"request_id", cmd.RequestID,
		"type", cmd.Type,
		"player_id", cmd.PlayerID,
	)

	locked, err := w.acquirePlayerLock(cmd.PlayerID)
	if err != nil {
		return fmt.Errorf("failed to acquire player lock: %w", err)
	}
	if !locked {
		// Another worker is handling this player; retry after the rest of the queue.
		w.log.Info("Player already locked, re-queueing command",
			"worker_id", w.id,
			"request_id", cmd.RequestID,
			"player_id", cmd.PlayerID,
		)
		if err := w.commands.Enqueue(w.ctx, cmd); err != nil {
			return fmt.Errorf("failed to re-queue command: %w", err)
		}
		return nil
	}
	defer w.releasePlayerLock(cmd.PlayerID)

	w.handle(cmd)
	return nil
}

func playerLockKey(playerID string) string {
	return fmt.Sprintf("player-lock:%s", playerID)
}

// acquirePlayerLock returns true if the lock was acquired, false if already held
func (w *Worker) acquirePlayerLock(playerID string) (bool, error) {
	return w.redisClient.SetNX(w.ctx, playerLockKey(playerID), w.id, playerLockTTL).Result()
}

func (w *Worker) releasePlayerLock(playerID string) {
	if err := releaseLockScript.Run(w.ctx, w.redisClient, []string{playerLockKey(playerID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release player lock", "error", err, "player_id", playerID)
	}
}

// handle runs one command and publishes its outcome. Command failures are
// reported to the player, not returned.
func (w *Worker) handle(cmd *queuePkg.Command) *queuePkg.Result {
	start := time.Now()
	log := logger.WithPlayer(logger.WithRequestID(w.log, cmd.RequestID), cmd.PlayerID)
	payload, err := w.processor.Process(w.ctx, cmd)

	result := &queuePkg.Result{
		RequestID: cmd.RequestID,
		Type:      cmd.Type,
		PlayerID:  cmd.PlayerID,
		OK:        err == nil,
		Payload:   payload,
		HandledAt: time.Now().UTC(),
	}

	if err != nil {
		result.Error = err.Error()
		result.ErrorKind = string(combat.KindOf(err))
		var cerr *combat.Error
		if errors.As(err, &cerr) {
			result.ErrorCode = string(cerr.Code)
		}

		level := slog.LevelInfo
		if combat.KindOf(err) == combat.KindPersistence || result.ErrorKind == "" {
			level = slog.LevelError
		}
		log.Log(w.ctx, level, "Command rejected",
			"worker_id", w.id,
			"type", cmd.Type,
			"error", err,
		)
		if pubErr := w.broadcaster.PublishCommandFailed(w.ctx, cmd.PlayerID, cmd.RequestID, string(cmd.Type), result.ErrorCode, result.Error); pubErr != nil {
			log.Error("Failed to publish failure event", "error", pubErr)
		}
	} else {
		log.Info("Command processed successfully",
			"worker_id", w.id,
			"type", cmd.Type,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		if pubErr := w.broadcaster.PublishCommandCompleted(w.ctx, cmd.PlayerID, cmd.RequestID, string(cmd.Type), payload); pubErr != nil {
			log.Error("Failed to publish completion event", "error", pubErr)
		}
	}

	// Duel outcomes are also pushed to the opponent, even if settlement failed.
	if payload != nil {
		w.publishDuelEvents(cmd, payload)
	}
	return result
}

func (w *Worker) publishDuelEvents(cmd *queuePkg.Command, payload any) {
	var (
		recipients []string
		event      events.Event
	)
	switch v := payload.(type) {
	case *duel.Challenge:
		recipients = []string{v.TargetID}
		event = events.Event{Type: events.EventTypeChallengeIssued, Data: map[string]any{"challenge": v}}
	case *duel.Duel:
		recipients = []string{v.Combatants[0].ID, v.Combatants[1].ID}
		event = events.Event{Type: events.EventTypeDuelStarted, Data: map[string]any{"duel": v}}
	case *duel.ActionResult:
		recipients = []string{v.TargetID}
		event = events.Event{Type: events.EventTypeDuelAction, Data: map[string]any{"action": v}}
		if v.Finished {
			recipients = []string{v.WinnerID, v.LoserID}
			event.Type = events.EventTypeDuelFinished
		}
	default:
		return
	}
	event.RequestID = cmd.RequestID
	if err := w.broadcaster.PublishToAll(w.ctx, recipients, event); err != nil {
		w.log.Error("Failed to publish duel event", "error", err, "event_type", event.Type)
	}
}
