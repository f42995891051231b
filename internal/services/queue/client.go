package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Client is the arena's shared Redis connection. The command queue, the
// settlement outbox, the session store and the event broadcaster all use it.
type Client struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// Backlog is a point-in-time view of the arena's Redis lists.
type Backlog struct {
	Commands        int64 `json:"commands"`
	Settlements     int64 `json:"settlements"`
	DeadSettlements int64 `json:"dead_settlements"`
}

// NewClient dials redisURL and fails unless the server answers a PING.
func NewClient(ctx context.Context, redisURL string, logger *slog.Logger) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL %q: %w", redisURL, err)
	}

	c := &Client{rdb: redis.NewClient(opt), logger: logger}
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}

	logger.Info("Arena Redis connection ready", "addr", opt.Addr, "db", opt.DB)
	return c, nil
}

// Ping checks that Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis unreachable: %w", err)
	}
	return nil
}

// Backlog reads the lengths of the command queue and both settlement lists
// in one round trip.
func (c *Client) Backlog(ctx context.Context) (Backlog, error) {
	var commands, settlements, dead *redis.IntCmd
	_, err := c.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		commands = p.LLen(ctx, CommandsKey)
		settlements = p.LLen(ctx, SettlementsKey)
		dead = p.LLen(ctx, DeadSettlementsKey)
		return nil
	})
	if err != nil {
		return Backlog{}, fmt.Errorf("failed to read backlog: %w", err)
	}
	return Backlog{
		Commands:        commands.Val(),
		Settlements:     settlements.Val(),
		DeadSettlements: dead.Val(),
	}, nil
}

// Redis exposes the connection to components that issue their own commands.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
