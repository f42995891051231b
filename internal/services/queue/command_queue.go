package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/queue"
	"github.com/redis/go-redis/v9"
)

// CommandsKey is the Redis list holding pending player commands.
const CommandsKey = "arena:commands"

// CommandQueue is a FIFO of player commands shared by every worker.
type CommandQueue struct {
	client *Client
}

func NewCommandQueue(client *Client) *CommandQueue {
	return &CommandQueue{client: client}
}

// Enqueue appends cmd to the queue, stamping EnqueuedAt if unset.
func (q *CommandQueue) Enqueue(ctx context.Context, cmd *queue.Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	if cmd.EnqueuedAt.IsZero() {
		cmd.EnqueuedAt = time.Now().UTC()
	}
	data, err := cmd.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize command: %w", err)
	}
	if err := q.client.rdb.RPush(ctx, CommandsKey, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue command: %w", err)
	}
	return nil
}

// Dequeue removes and returns the next command, or nil if the queue is empty.
func (q *CommandQueue) Dequeue(ctx context.Context) (*queue.Command, error) {
	result, err := q.client.rdb.LPop(ctx, CommandsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue command: %w", err)
	}
	return parseCommand(result)
}

// BlockingDequeue waits up to timeout for a command. It returns nil, nil on timeout.
func (q *CommandQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Command, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, CommandsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue command: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return parseCommand(result[1])
}

// Depth returns the number of queued commands.
func (q *CommandQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, CommandsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get command queue depth: %w", err)
	}
	return int(count), nil
}

func parseCommand(raw string) (*queue.Command, error) {
	cmd, err := queue.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse command: %w", err)
	}
	return cmd, nil
}
