package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/internal/storage/migrations"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/storage"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements storage.Persistence on a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements Persistence interface
var _ storage.Persistence = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer keeps currency updates serialized.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("SQLite store ready", "path", cleanPath)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite ping failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Player profile

func (s *SQLiteStore) GetPlayer(ctx context.Context, id string) (*combat.Player, error) {
	var p combat.Player
	err := s.db.QueryRowContext(ctx, `
SELECT id, display_name, level, currency, experience, wins, losses
FROM players WHERE id = ?`, id).Scan(
		&p.ID, &p.DisplayName, &p.Level, &p.Currency, &p.Experience, &p.Wins, &p.Losses,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get player: %w", err)
	}
	return &p, nil
}

// UpsertPlayer creates or replaces a player profile.
func (s *SQLiteStore) UpsertPlayer(ctx context.Context, p combat.Player) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO players (id, display_name, level, currency, experience, wins, losses)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	display_name = excluded.display_name,
	level = excluded.level,
	currency = excluded.currency,
	experience = excluded.experience,
	wins = excluded.wins,
	losses = excluded.losses`,
		p.ID, p.DisplayName, p.Level, p.Currency, p.Experience, p.Wins, p.Losses)
	if err != nil {
		return fmt.Errorf("upsert player: %w", err)
	}
	return nil
}

// updatePlayer runs an UPDATE against one player row and fails if none matched.
func (s *SQLiteStore) updatePlayer(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: player not found", op)
	}
	return nil
}

func (s *SQLiteStore) ApplyCurrencyDelta(ctx context.Context, id string, delta combat.CurrencyDelta) error {
	return s.updatePlayer(ctx, "apply currency delta",
		"UPDATE players SET currency = currency + ? WHERE id = ?", delta.Currency, id)
}

func (s *SQLiteStore) ApplyExperienceDelta(ctx context.Context, id string, amount int) error {
	return s.updatePlayer(ctx, "apply experience delta",
		"UPDATE players SET experience = experience + ? WHERE id = ?", amount, id)
}

func (s *SQLiteStore) IncrementWinLossCounters(ctx context.Context, id string, outcome combat.DuelOutcome) error {
	switch outcome {
	case combat.DuelOutcomeWin:
		return s.updatePlayer(ctx, "increment wins", "UPDATE players SET wins = wins + 1 WHERE id = ?", id)
	case combat.DuelOutcomeLoss:
		return s.updatePlayer(ctx, "increment losses", "UPDATE players SET losses = losses + 1 WHERE id = ?", id)
	default:
		return fmt.Errorf("unknown duel outcome: %s", outcome)
	}
}

func (s *SQLiteStore) GrantItem(ctx context.Context, id string, itemRef string, qty int) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO inventory (player_id, item_ref, quantity) VALUES (?, ?, ?)
ON CONFLICT(player_id, item_ref) DO UPDATE SET quantity = quantity + excluded.quantity`,
		id, itemRef, qty)
	if err != nil {
		return fmt.Errorf("grant item: %w", err)
	}
	return nil
}

// Inventory returns how many of itemRef the player holds.
func (s *SQLiteStore) Inventory(ctx context.Context, id, itemRef string) (int, error) {
	var qty int
	err := s.db.QueryRowContext(ctx,
		"SELECT quantity FROM inventory WHERE player_id = ? AND item_ref = ?", id, itemRef).Scan(&qty)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read inventory: %w", err)
	}
	return qty, nil
}

// History

func (s *SQLiteStore) RecordCombatLog(ctx context.Context, entry combat.CombatLogEntry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO combat_logs (id, player_id, encounter_id, action, pattern, success, damage, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID.String(), entry.PlayerID, entry.EncounterID, string(entry.Action),
		entry.Pattern, entry.Success, entry.Damage, entry.CreatedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record combat log: %w", err)
	}
	return nil
}

// CombatLogs lists a player's log entries oldest first.
func (s *SQLiteStore) CombatLogs(ctx context.Context, playerID string) ([]combat.CombatLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, player_id, encounter_id, action, pattern, success, damage, created_at
FROM combat_logs WHERE player_id = ?
ORDER BY created_at, rowid`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list combat logs: %w", err)
	}
	defer rows.Close()

	var out []combat.CombatLogEntry
	for rows.Next() {
		var (
			e       combat.CombatLogEntry
			id      string
			action  string
			created int64
		)
		if err := rows.Scan(&id, &e.PlayerID, &e.EncounterID, &action, &e.Pattern, &e.Success, &e.Damage, &created); err != nil {
			return nil, fmt.Errorf("scan combat log: %w", err)
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse combat log id: %w", err)
		}
		e.Action = combat.CombatAction(action)
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordBattleResult stores a duel result once; replays of the same duel are ignored.
func (s *SQLiteStore) RecordBattleResult(ctx context.Context, result combat.BattleResult) error {
	_, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO battle_results (
	duel_id, winner_id, loser_id, rounds,
	winner_currency, winner_experience, loser_currency, loser_experience,
	ended_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.DuelID.String(), result.WinnerID, result.LoserID, result.Rounds,
		result.Rewards.WinnerCurrency, result.Rewards.WinnerExperience,
		result.Rewards.LoserCurrency, result.Rewards.LoserExperience,
		result.EndedAt.UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("record battle result: %w", err)
	}
	return nil
}

// Catalog and collection

func (s *SQLiteStore) ListEncounters(ctx context.Context, maxDifficulty int) ([]combat.Encounter, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, difficulty, rarity, weakness_pattern, weakness_hint,
	reward_currency, reward_experience, item_drop_chance, item_refs
FROM encounters WHERE difficulty <= ?
ORDER BY id`, maxDifficulty)
	if err != nil {
		return nil, fmt.Errorf("list encounters: %w", err)
	}
	defer rows.Close()

	var out []combat.Encounter
	for rows.Next() {
		var (
			e    combat.Encounter
			refs string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Difficulty, &e.Rarity, &e.WeaknessPattern, &e.WeaknessHint,
			&e.Reward.Currency, &e.Reward.Experience, &e.Reward.ItemDropChance, &refs); err != nil {
			return nil, fmt.Errorf("scan encounter: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &e.Reward.ItemRefs); err != nil {
			return nil, fmt.Errorf("decode item refs for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertEncounter adds or replaces a catalog encounter.
func (s *SQLiteStore) UpsertEncounter(ctx context.Context, e combat.Encounter) error {
	refs, err := json.Marshal(nonNil(e.Reward.ItemRefs))
	if err != nil {
		return fmt.Errorf("encode item refs: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO encounters (id, name, difficulty, rarity, weakness_pattern, weakness_hint,
	reward_currency, reward_experience, item_drop_chance, item_refs)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	difficulty = excluded.difficulty,
	rarity = excluded.rarity,
	weakness_pattern = excluded.weakness_pattern,
	weakness_hint = excluded.weakness_hint,
	reward_currency = excluded.reward_currency,
	reward_experience = excluded.reward_experience,
	item_drop_chance = excluded.item_drop_chance,
	item_refs = excluded.item_refs`,
		e.ID, e.Name, e.Difficulty, e.Rarity, e.WeaknessPattern, e.WeaknessHint,
		e.Reward.Currency, e.Reward.Experience, e.Reward.ItemDropChance, string(refs))
	if err != nil {
		return fmt.Errorf("upsert encounter: %w", err)
	}
	return nil
}

// UpsertEidolon adds or replaces an eidolon in the attunement catalog.
func (s *SQLiteStore) UpsertEidolon(ctx context.Context, e combat.Eidolon) error {
	abilities, err := json.Marshal(nonNil(e.Abilities))
	if err != nil {
		return fmt.Errorf("encode abilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO eidolons (id, name, rarity, abilities) VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	rarity = excluded.rarity,
	abilities = excluded.abilities`,
		e.ID, e.Name, e.Rarity, string(abilities))
	if err != nil {
		return fmt.Errorf("upsert eidolon: %w", err)
	}
	return nil
}

// EidolonCatalog returns every eidolon that can be attuned, ordered by id.
func (s *SQLiteStore) EidolonCatalog(ctx context.Context) ([]combat.Eidolon, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, rarity, abilities FROM eidolons ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list eidolon catalog: %w", err)
	}
	defer rows.Close()
	return scanEidolons(rows)
}

func (s *SQLiteStore) ListEidolons(ctx context.Context, playerID string) ([]combat.Eidolon, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT eidolon_id, name, rarity, abilities
FROM player_eidolons WHERE player_id = ?
ORDER BY seq`, playerID)
	if err != nil {
		return nil, fmt.Errorf("list eidolons: %w", err)
	}
	defer rows.Close()
	return scanEidolons(rows)
}

func (s *SQLiteStore) GrantEidolon(ctx context.Context, playerID string, eidolon combat.Eidolon) error {
	abilities, err := json.Marshal(nonNil(eidolon.Abilities))
	if err != nil {
		return fmt.Errorf("encode abilities: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO player_eidolons (player_id, eidolon_id, name, rarity, abilities, acquired_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		playerID, eidolon.ID, eidolon.Name, eidolon.Rarity, string(abilities), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("grant eidolon: %w", err)
	}
	return nil
}

func scanEidolons(rows *sql.Rows) ([]combat.Eidolon, error) {
	var out []combat.Eidolon
	for rows.Next() {
		var (
			e         combat.Eidolon
			abilities string
		)
		if err := rows.Scan(&e.ID, &e.Name, &e.Rarity, &abilities); err != nil {
			return nil, fmt.Errorf("scan eidolon: %w", err)
		}
		if err := json.Unmarshal([]byte(abilities), &e.Abilities); err != nil {
			return nil, fmt.Errorf("decode abilities for %s: %w", e.ID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
