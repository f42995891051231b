package dungeon

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/session"
	"github.com/jwebster45206/weave-arena/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedRand always rolls the same offset.
type fixedRand struct{ n int }

func (f fixedRand) IntN(int) int     { return f.n }
func (f fixedRand) Float64() float64 { return 0 }

func newRunner(t *testing.T, rng fixedRand) (*Runner, *storage.MockStorage, *time.Time) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := storage.NewMockStorage()
	store.AddPlayer(combat.Player{ID: "alice", DisplayName: "Alice", Currency: 10})

	now := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	sessions := session.NewMemoryStore(clock)
	resolver := rewards.NewResolver(store, rng, logger)
	r := NewRunner(store, sessions, resolver, logger, WithRand(rng), WithClock(clock))
	return r, store, &now
}

func TestRunner_ClearPaysOut(t *testing.T) {
	// Minimum damage keeps the run alive through every stage.
	r, store, _ := newRunner(t, fixedRand{0})
	ctx := context.Background()

	run, err := r.Enter(ctx, "alice", "sunken-vault")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Stage)
	assert.Equal(t, MaxHP, run.HP)

	_, err = r.Enter(ctx, "alice", "sunken-vault")
	assert.ErrorIs(t, err, combat.ErrAlreadyActive)

	var last *AdvanceResult
	for range Stages {
		last, err = r.Advance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, StageDamageMin, last.Damage)
	}
	require.True(t, last.Cleared)
	assert.Equal(t, MaxHP-Stages*StageDamageMin, last.Run.HP)

	status, err := r.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, status)

	p := store.Player("alice")
	assert.Equal(t, 10+currencyPerStage*Stages, p.Currency)
	assert.Equal(t, experiencePerStage*Stages, p.Experience)
}

func TestRunner_FailsAtZeroHP(t *testing.T) {
	r, store, _ := newRunner(t, fixedRand{StageDamageMax - StageDamageMin})
	ctx := context.Background()

	_, err := r.Enter(ctx, "alice", "ash-pit")
	require.NoError(t, err)

	// 25 damage per stage: 75, 50, 25, 0.
	var res *AdvanceResult
	for range 4 {
		res, err = r.Advance(ctx, "alice")
		require.NoError(t, err)
	}
	assert.True(t, res.Failed)
	assert.False(t, res.Cleared)
	assert.Equal(t, 0, res.Run.HP)
	assert.Equal(t, 10, store.Player("alice").Currency)

	_, err = r.Advance(ctx, "alice")
	assert.ErrorIs(t, err, combat.ErrNoActiveSession)
}

func TestRunner_RunExpires(t *testing.T) {
	r, _, now := newRunner(t, fixedRand{0})
	ctx := context.Background()

	_, err := r.Enter(ctx, "alice", "sunken-vault")
	require.NoError(t, err)

	*now = now.Add(DefaultRunTTL)
	_, err = r.Advance(ctx, "alice")
	assert.ErrorIs(t, err, combat.ErrNoActiveSession)

	_, err = r.Enter(ctx, "alice", "sunken-vault")
	assert.NoError(t, err)
}

func TestRunner_LeaveAndValidation(t *testing.T) {
	r, _, _ := newRunner(t, fixedRand{0})
	ctx := context.Background()

	_, err := r.Enter(ctx, "", "x")
	assert.ErrorIs(t, err, combat.ErrInvalidPlayerID)
	_, err = r.Enter(ctx, "nobody", "x")
	assert.ErrorIs(t, err, combat.ErrPlayerNotFound)

	_, err = r.Enter(ctx, "alice", "x")
	require.NoError(t, err)
	require.NoError(t, r.Leave(ctx, "alice"))

	status, err := r.Status(ctx, "alice")
	require.NoError(t, err)
	assert.Nil(t, status)
}
