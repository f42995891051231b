package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// Catalog is the static game content loaded from the data directory.
type Catalog struct {
	Encounters []combat.Encounter
	Eidolons   []combat.Eidolon
	Players    []combat.Player
}

// LoadCatalog reads every *.json file under dataDir/encounters,
// dataDir/eidolons and dataDir/players. Each file holds a JSON array.
// Unreadable files are skipped with a warning.
func LoadCatalog(dataDir string, logger *slog.Logger) (*Catalog, error) {
	var c Catalog
	if err := loadDir(filepath.Join(dataDir, "encounters"), &c.Encounters, logger); err != nil {
		return nil, err
	}
	if err := loadDir(filepath.Join(dataDir, "eidolons"), &c.Eidolons, logger); err != nil {
		return nil, err
	}
	if err := loadDir(filepath.Join(dataDir, "players"), &c.Players, logger); err != nil {
		return nil, err
	}
	return &c, nil
}

func loadDir[T any](dir string, out *[]T, logger *slog.Logger) error {
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			logger.Warn("Failed to read catalog file", "path", path, "error", err)
			return nil
		}

		var items []T
		if err := json.Unmarshal(data, &items); err != nil {
			logger.Warn("Failed to unmarshal catalog file", "path", path, "error", err)
			return nil
		}
		*out = append(*out, items...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load catalog from %s: %w", dir, err)
	}
	return nil
}

// Seed writes the catalog into the store. Existing rows are replaced.
func (c *Catalog) Seed(ctx context.Context, store *SQLiteStore) error {
	for _, e := range c.Encounters {
		if err := store.UpsertEncounter(ctx, e); err != nil {
			return fmt.Errorf("seed encounter %s: %w", e.ID, err)
		}
	}
	for _, e := range c.Eidolons {
		if err := store.UpsertEidolon(ctx, e); err != nil {
			return fmt.Errorf("seed eidolon %s: %w", e.ID, err)
		}
	}
	for _, p := range c.Players {
		existing, err := store.GetPlayer(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("seed player %s: %w", p.ID, err)
		}
		if existing != nil {
			continue
		}
		if err := store.UpsertPlayer(ctx, p); err != nil {
			return fmt.Errorf("seed player %s: %w", p.ID, err)
		}
	}
	return nil
}
