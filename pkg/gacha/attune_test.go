package gacha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"testing"
	"time"

	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCatalog = []combat.Eidolon{
	{ID: "ember-wisp", Name: "Ember Wisp", Rarity: combat.RarityCommon, Abilities: []string{"spark"}},
	{ID: "tide-warden", Name: "Tide Warden", Rarity: combat.RarityRare, Abilities: []string{"undertow"}},
}

func newTestAttuner(t *testing.T, store storage.Persistence, now *time.Time) *Attuner {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAttuner(store, NewMemoryCooldowns(), testCatalog, logger,
		WithAttuneRand(rand.New(rand.NewPCG(1, 2))),
		WithAttuneClock(func() time.Time { return *now }),
	)
}

func TestAttune_GrantsEidolonAndStartsCooldown(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddPlayer(combat.Player{ID: "p1", Level: 3})
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := newTestAttuner(t, store, &now)
	ctx := context.Background()

	res, err := a.Attune(ctx, "p1")
	require.NoError(t, err)
	assert.Contains(t, []string{"ember-wisp", "tide-warden"}, res.Eidolon.ID)
	assert.Equal(t, now.Add(DefaultAttuneCooldown), res.NextAttuneAt)

	owned, err := store.ListEidolons(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, owned, 1)

	now = now.Add(5 * time.Minute)
	_, err = a.Attune(ctx, "p1")
	assert.True(t, errors.Is(err, combat.ErrOnCooldown), "expected cooldown, got %v", err)

	now = now.Add(5 * time.Minute)
	_, err = a.Attune(ctx, "p1")
	require.NoError(t, err)

	owned, _ = store.ListEidolons(ctx, "p1")
	assert.Len(t, owned, 2)
}

func TestAttune_NeverDrawsRarityMissingFromCatalog(t *testing.T) {
	store := storage.NewMockStorage()
	now := time.Now()
	a := newTestAttuner(t, store, &now)

	for i := range 500 {
		store.AddPlayer(combat.Player{ID: fmt.Sprintf("p%d", i)})
	}

	for i := range 500 {
		id := fmt.Sprintf("p%d", i)
		res, err := a.Attune(context.Background(), id)
		require.NoError(t, err)
		assert.Contains(t, []string{combat.RarityCommon, combat.RarityRare}, res.Eidolon.Rarity)
	}
}

func TestAttune_Errors(t *testing.T) {
	store := storage.NewMockStorage()
	store.AddPlayer(combat.Player{ID: "p1"})
	now := time.Now()
	a := newTestAttuner(t, store, &now)
	ctx := context.Background()

	_, err := a.Attune(ctx, "")
	assert.ErrorIs(t, err, combat.ErrInvalidPlayerID)

	_, err = a.Attune(ctx, "ghost")
	assert.ErrorIs(t, err, combat.ErrPlayerNotFound)

	store.SetError(storage.OpGrantEidolon, errors.New("db down"))
	_, err = a.Attune(ctx, "p1")
	assert.ErrorIs(t, err, combat.ErrPersistence)

	// A failed grant must not start the cooldown.
	store.SetError(storage.OpGrantEidolon, nil)
	_, err = a.Attune(ctx, "p1")
	assert.NoError(t, err)
}
