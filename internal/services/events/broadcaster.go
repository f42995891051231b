package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeCommandCompleted EventType = "command.completed"
	EventTypeCommandFailed    EventType = "command.failed"
	EventTypeChallengeIssued  EventType = "duel.challenge_issued"
	EventTypeDuelStarted      EventType = "duel.started"
	EventTypeDuelAction       EventType = "duel.action"
	EventTypeDuelFinished     EventType = "duel.finished"
)

// Event represents a generic event structure
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	PlayerID  string         `json:"player_id"`
	Data      map[string]any `json:"data,omitempty"`
	SentAt    time.Time      `json:"sent_at"`
}

// PlayerChannel is the pub/sub channel carrying a player's events.
func PlayerChannel(playerID string) string {
	return fmt.Sprintf("arena-events:%s", playerID)
}

// Broadcaster publishes events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishCommandCompleted publishes the payload returned by a handled command
func (b *Broadcaster) PublishCommandCompleted(ctx context.Context, playerID, requestID, commandType string, payload any) error {
	return b.Publish(ctx, playerID, Event{
		Type:      EventTypeCommandCompleted,
		RequestID: requestID,
		Data: map[string]any{
			"command": commandType,
			"result":  payload,
		},
	})
}

// PublishCommandFailed publishes a rejected or failed command
func (b *Broadcaster) PublishCommandFailed(ctx context.Context, playerID, requestID, commandType, code, message string) error {
	return b.Publish(ctx, playerID, Event{
		Type:      EventTypeCommandFailed,
		RequestID: requestID,
		Data: map[string]any{
			"command": commandType,
			"code":    code,
			"error":   message,
		},
	})
}

// Publish sends event to playerID's channel.
func (b *Broadcaster) Publish(ctx context.Context, playerID string, event Event) error {
	channel := PlayerChannel(playerID)
	event.PlayerID = playerID
	if event.SentAt.IsZero() {
		event.SentAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)
	return nil
}

// PublishToAll sends the same event to each player in playerIDs and
// returns the first error.
func (b *Broadcaster) PublishToAll(ctx context.Context, playerIDs []string, event Event) error {
	var firstErr error
	for _, id := range playerIDs {
		if err := b.Publish(ctx, id, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
