package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/jwebster45206/weave-arena/internal/config"
)

func TestSetup_ProductionUsesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "production", LogLevel: slog.LevelInfo, WorkerID: "w1"})
	WithRequestID(log, "r1").Info("Command handled")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("Expected JSON output, got %q: %v", buf.String(), err)
	}
	if line["worker_id"] != "w1" || line["request_id"] != "r1" {
		t.Errorf("Missing context fields: %v", line)
	}
}

func TestSetup_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	log := setup(&buf, &config.Config{Environment: "development", LogLevel: slog.LevelWarn})
	log.Info("dropped")
	WithPlayer(log, "alice").Warn("kept")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Errorf("Info should be filtered at warn level: %q", out)
	}
	if !strings.Contains(out, "player_id=alice") {
		t.Errorf("Expected player_id in text output: %q", out)
	}
}
