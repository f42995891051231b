package storage

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/jwebster45206/weave-arena/pkg/combat"
)

// Operation names accepted by MockStorage.SetError.
const (
	OpGetPlayer                = "GetPlayer"
	OpApplyCurrencyDelta       = "ApplyCurrencyDelta"
	OpApplyExperienceDelta     = "ApplyExperienceDelta"
	OpGrantItem                = "GrantItem"
	OpRecordCombatLog          = "RecordCombatLog"
	OpRecordBattleResult       = "RecordBattleResult"
	OpIncrementWinLossCounters = "IncrementWinLossCounters"
	OpListEncounters           = "ListEncounters"
	OpListEidolons             = "ListEidolons"
	OpGrantEidolon             = "GrantEidolon"
)

// MockStorage is an in-memory Persistence for testing
type MockStorage struct {
	mu            sync.RWMutex
	players       map[string]*combat.Player
	encounters    map[string]combat.Encounter
	eidolons      map[string][]combat.Eidolon
	inventory     map[string]map[string]int
	combatLogs    []combat.CombatLogEntry
	battleResults []combat.BattleResult
	errs          map[string]error
	pingError     error
}

// Ensure MockStorage implements Persistence interface
var _ Persistence = (*MockStorage)(nil)

// NewMockStorage creates a new mock storage
func NewMockStorage() *MockStorage {
	return &MockStorage{
		players:    make(map[string]*combat.Player),
		encounters: make(map[string]combat.Encounter),
		eidolons:   make(map[string][]combat.Eidolon),
		inventory:  make(map[string]map[string]int),
		errs:       make(map[string]error),
	}
}

// SetPingError configures the mock to fail on ping with the given error
func (m *MockStorage) SetPingError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingError = err
}

// SetError makes the named operation fail with err. A nil err clears it.
func (m *MockStorage) SetError(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.errs, op)
		return
	}
	m.errs[op] = err
}

// AddPlayer stores a copy of the player
func (m *MockStorage) AddPlayer(p combat.Player) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[p.ID] = &p
}

// AddEncounter adds an encounter to the catalog
func (m *MockStorage) AddEncounter(e combat.Encounter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.encounters[e.ID] = e
}

// Player returns a snapshot of the stored player, or nil
func (m *MockStorage) Player(id string) *combat.Player {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.players[id]
	if !ok {
		return nil
	}
	cp := *p
	return &cp
}

// Inventory returns the quantity of itemRef held by the player
func (m *MockStorage) Inventory(id, itemRef string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.inventory[id][itemRef]
}

// CombatLogs returns all recorded combat log entries in order
func (m *MockStorage) CombatLogs() []combat.CombatLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.combatLogs)
}

// BattleResults returns all recorded battle results in order
func (m *MockStorage) BattleResults() []combat.BattleResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.battleResults)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pingError
}

func (m *MockStorage) Close() error {
	return nil
}

func (m *MockStorage) GetPlayer(ctx context.Context, id string) (*combat.Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.errs[OpGetPlayer]; err != nil {
		return nil, err
	}
	p, ok := m.players[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (m *MockStorage) ApplyCurrencyDelta(ctx context.Context, id string, delta combat.CurrencyDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpApplyCurrencyDelta]; err != nil {
		return err
	}
	p, ok := m.players[id]
	if !ok {
		return errors.New("player not found: " + id)
	}
	p.Currency += delta.Currency
	return nil
}

func (m *MockStorage) ApplyExperienceDelta(ctx context.Context, id string, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpApplyExperienceDelta]; err != nil {
		return err
	}
	p, ok := m.players[id]
	if !ok {
		return errors.New("player not found: " + id)
	}
	p.Experience += amount
	return nil
}

func (m *MockStorage) GrantItem(ctx context.Context, id string, itemRef string, qty int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpGrantItem]; err != nil {
		return err
	}
	if m.inventory[id] == nil {
		m.inventory[id] = make(map[string]int)
	}
	m.inventory[id][itemRef] += qty
	return nil
}

func (m *MockStorage) RecordCombatLog(ctx context.Context, entry combat.CombatLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpRecordCombatLog]; err != nil {
		return err
	}
	m.combatLogs = append(m.combatLogs, entry)
	return nil
}

func (m *MockStorage) RecordBattleResult(ctx context.Context, result combat.BattleResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpRecordBattleResult]; err != nil {
		return err
	}
	m.battleResults = append(m.battleResults, result)
	return nil
}

func (m *MockStorage) IncrementWinLossCounters(ctx context.Context, id string, outcome combat.DuelOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpIncrementWinLossCounters]; err != nil {
		return err
	}
	p, ok := m.players[id]
	if !ok {
		return errors.New("player not found: " + id)
	}
	switch outcome {
	case combat.DuelOutcomeWin:
		p.Wins++
	case combat.DuelOutcomeLoss:
		p.Losses++
	default:
		return errors.New("unknown duel outcome: " + string(outcome))
	}
	return nil
}

func (m *MockStorage) ListEncounters(ctx context.Context, maxDifficulty int) ([]combat.Encounter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.errs[OpListEncounters]; err != nil {
		return nil, err
	}
	var out []combat.Encounter
	for _, e := range m.encounters {
		if e.Difficulty <= maxDifficulty {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b combat.Encounter) int {
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MockStorage) ListEidolons(ctx context.Context, playerID string) ([]combat.Eidolon, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.errs[OpListEidolons]; err != nil {
		return nil, err
	}
	return slices.Clone(m.eidolons[playerID]), nil
}

func (m *MockStorage) GrantEidolon(ctx context.Context, playerID string, eidolon combat.Eidolon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[OpGrantEidolon]; err != nil {
		return err
	}
	m.eidolons[playerID] = append(m.eidolons[playerID], eidolon)
	return nil
}
