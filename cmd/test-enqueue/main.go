package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/internal/services/queue"
	queuePkg "github.com/jwebster45206/weave-arena/pkg/queue"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379", "Redis URL")
	player := flag.String("player", "alice", "acting player")
	opponent := flag.String("opponent", "bob", "duel opponent")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	ctx := context.Background()

	client, err := queue.NewClient(ctx, *redisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	commands := queue.NewCommandQueue(client)
	script := []*queuePkg.Command{
		{Type: queuePkg.CommandStartEncounter, PlayerID: *player},
		{Type: queuePkg.CommandScan, PlayerID: *player},
		{Type: queuePkg.CommandWeave, PlayerID: *player, Pattern: "memory and clear"},
		{Type: queuePkg.CommandAttune, PlayerID: *player},
		{Type: queuePkg.CommandAttune, PlayerID: *opponent},
		{Type: queuePkg.CommandChallenge, PlayerID: *player, TargetID: *opponent},
		{Type: queuePkg.CommandAccept, PlayerID: *opponent, TargetID: *player},
		{Type: queuePkg.CommandEnterDungeon, PlayerID: *player, DungeonID: "sunken-vault"},
		{Type: queuePkg.CommandAdvanceDungeon, PlayerID: *player},
	}

	for _, cmd := range script {
		cmd.RequestID = uuid.New().String()
		if err := commands.Enqueue(ctx, cmd); err != nil {
			log.Fatal("Failed to enqueue command:", err)
		}
		fmt.Printf("Enqueued %s for %s: %s\n", cmd.Type, cmd.PlayerID, cmd.RequestID)
	}

	backlog, err := client.Backlog(ctx)
	if err != nil {
		log.Fatal("Failed to read backlog:", err)
	}

	fmt.Printf("\nQueue depth: %d commands\n", backlog.Commands)
	if backlog.Settlements > 0 || backlog.DeadSettlements > 0 {
		fmt.Printf("Settlements pending: %d, dead: %d\n", backlog.Settlements, backlog.DeadSettlements)
	}
	fmt.Println("Start the worker to process them: go run ./cmd/worker")
}
