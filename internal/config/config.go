package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

type Config struct {
	Environment    string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevelName   string `env:"LOG_LEVEL" envDefault:"info"`
	LogLevel       slog.Level
	RedisURL       string        `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	SQLitePath     string        `env:"SQLITE_PATH" envDefault:"data/arena.db"`
	DataDir        string        `env:"DATA_DIR" envDefault:"data"`
	WorkerID       string        `env:"WORKER_ID"`
	SessionBackend string        `env:"SESSION_BACKEND" envDefault:"redis"`
	ChallengeTTL   time.Duration `env:"CHALLENGE_TTL" envDefault:"5m"`
	AttuneCooldown time.Duration `env:"ATTUNE_COOLDOWN" envDefault:"10m"`
	DungeonTTL     time.Duration `env:"DUNGEON_TTL" envDefault:"30m"`
	SweepInterval  time.Duration `env:"SWEEP_INTERVAL" envDefault:"5s"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.LogLevel = parseLogLevel(cfg.LogLevelName)

	switch cfg.SessionBackend {
	case BackendMemory, BackendRedis:
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", cfg.SessionBackend)
	}
	if cfg.SweepInterval <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	return &cfg, nil
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
