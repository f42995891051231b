package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jwebster45206/weave-arena/internal/config"
	"github.com/jwebster45206/weave-arena/internal/logger"
	"github.com/jwebster45206/weave-arena/internal/services/queue"
	"github.com/jwebster45206/weave-arena/internal/storage"
	"github.com/jwebster45206/weave-arena/internal/worker"
	"github.com/jwebster45206/weave-arena/pkg/duel"
	"github.com/jwebster45206/weave-arena/pkg/dungeon"
	"github.com/jwebster45206/weave-arena/pkg/encounter"
	"github.com/jwebster45206/weave-arena/pkg/gacha"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/schedule"
	"github.com/jwebster45206/weave-arena/pkg/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Weave Arena Worker",
		"environment", cfg.Environment,
		"session_backend", cfg.SessionBackend,
		"sqlite_path", cfg.SQLitePath)

	startupCtx, startupCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer startupCancel()

	// Persistence
	store, err := storage.OpenSQLite(startupCtx, cfg.SQLitePath, log)
	if err != nil {
		log.Error("Failed to open SQLite store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Error closing SQLite store", "error", err)
		}
	}()

	catalog, err := storage.LoadCatalog(cfg.DataDir, log)
	if err != nil {
		log.Error("Failed to load catalog", "error", err, "data_dir", cfg.DataDir)
		os.Exit(1)
	}
	if err := catalog.Seed(startupCtx, store); err != nil {
		log.Error("Failed to seed catalog", "error", err)
		os.Exit(1)
	}
	eidolons, err := store.EidolonCatalog(startupCtx)
	if err != nil {
		log.Error("Failed to read eidolon catalog", "error", err)
		os.Exit(1)
	}
	log.Info("Catalog loaded",
		"encounters", len(catalog.Encounters),
		"eidolons", len(eidolons))

	// Redis
	queueClient, err := queue.NewClient(startupCtx, cfg.RedisURL, log)
	if err != nil {
		log.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			log.Error("Error closing queue client", "error", err)
		}
	}()
	rdb := queueClient.Redis()

	var (
		sessions  session.Store
		cooldowns gacha.CooldownStore
	)
	switch cfg.SessionBackend {
	case config.BackendRedis:
		redisSessions := storage.NewRedisSessionStore(rdb, nil, log)
		if err := redisSessions.WaitForConnection(startupCtx); err != nil {
			log.Error("Redis session store unavailable", "error", err)
			os.Exit(1)
		}
		sessions = redisSessions
		cooldowns = storage.NewRedisCooldowns(rdb)
	default:
		sessions = session.NewMemoryStore(nil)
		cooldowns = gacha.NewMemoryCooldowns()
	}

	// Engines
	scheduler := schedule.NewQueue(nil, log)
	outbox := queue.NewSettlementOutbox(queueClient, queue.DefaultMaxSettlementAttempts)
	resolver := rewards.NewResolver(store, nil, log)

	processor := worker.NewCommandProcessor(
		encounter.NewEngine(store, sessions, resolver, log),
		duel.NewEngine(store, resolver, scheduler, log,
			duel.WithChallengeTTL(cfg.ChallengeTTL),
			duel.WithOutbox(outbox)),
		gacha.NewAttuner(store, cooldowns, eidolons, log,
			gacha.WithAttuneCooldown(cfg.AttuneCooldown)),
		dungeon.NewRunner(store, sessions, resolver, log,
			dungeon.WithRunTTL(cfg.DungeonTTL)),
		log,
	)
	log.Info("Command processor initialized successfully")

	w := worker.New(worker.Config{
		WorkerID:      cfg.WorkerID,
		Commands:      queue.NewCommandQueue(queueClient),
		Processor:     processor,
		Outbox:        outbox,
		Settle:        resolver.SettleDuel,
		Scheduler:     scheduler,
		SweepInterval: cfg.SweepInterval,
		RedisClient:   rdb,
	}, log)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Start(); err != nil {
			log.Error("Worker error", "error", err)
		}
	}()

	log.Info("Worker started, waiting for commands...", "worker_id", w.ID())

	<-quit
	log.Info("Worker shutdown signal received")
	w.Stop()

	// Give the worker time to finish the current command
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		log.Warn("Worker did not stop in time")
	}

	log.Info("Worker exited")
}
