package duel

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/rewards"
	"github.com/jwebster45206/weave-arena/pkg/schedule"
	"github.com/jwebster45206/weave-arena/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type recordingOutbox struct {
	mu      sync.Mutex
	results []combat.BattleResult
}

func (o *recordingOutbox) Push(ctx context.Context, r combat.BattleResult) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, r)
	return nil
}

type fixture struct {
	store     *storage.MockStorage
	clock     *clock
	scheduler *schedule.Queue
	outbox    *recordingOutbox
	engine    *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := storage.NewMockStorage()
	store.AddPlayer(combat.Player{ID: "alice", DisplayName: "Alice", Level: 4, Currency: 500})
	store.AddPlayer(combat.Player{ID: "bob", DisplayName: "Bob", Level: 4, Currency: 500})
	store.AddPlayer(combat.Player{ID: "carol", DisplayName: "Carol", Level: 2, Currency: 500})

	ctx := context.Background()
	require.NoError(t, store.GrantEidolon(ctx, "alice", combat.Eidolon{ID: "e1", Name: "Ember Fox", Rarity: combat.RarityRare, Abilities: []string{"flame lash"}}))
	require.NoError(t, store.GrantEidolon(ctx, "bob", combat.Eidolon{ID: "e2", Name: "Tide Golem", Rarity: combat.RarityCommon, Abilities: []string{"undertow"}}))

	clk := &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	scheduler := schedule.NewQueue(clk.Now, testLogger())
	rng := rand.New(rand.NewPCG(3, 9))
	resolver := rewards.NewResolver(store, rng, testLogger())
	outbox := &recordingOutbox{}
	engine := NewEngine(store, resolver, scheduler, testLogger(), WithRand(rng), WithOutbox(outbox))

	return &fixture{store: store, clock: clk, scheduler: scheduler, outbox: outbox, engine: engine}
}

func (f *fixture) startDuel(t *testing.T) *Duel {
	t.Helper()
	ctx := context.Background()
	_, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)
	d, err := f.engine.Accept(ctx, "bob", "alice")
	require.NoError(t, err)
	return d
}

func TestChallenge_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, "alice", "alice")
	assert.ErrorIs(t, err, combat.ErrSelfTarget)
	assert.Equal(t, combat.KindValidation, combat.KindOf(err))

	_, err = f.engine.Challenge(ctx, "alice", "ghost")
	assert.ErrorIs(t, err, combat.ErrPlayerNotFound)

	_, err = f.engine.Challenge(ctx, "", "bob")
	assert.ErrorIs(t, err, combat.ErrInvalidPlayerID)
}

func TestChallenge_DuplicatePair(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.Equal(t, ChallengePending, c.Status)
	assert.Equal(t, f.clock.Now().Add(DefaultChallengeTTL), c.ExpiresAt)

	_, err = f.engine.Challenge(ctx, "alice", "bob")
	assert.ErrorIs(t, err, combat.ErrDuplicateChallenge)

	// The reverse direction is the same pair.
	_, err = f.engine.Challenge(ctx, "bob", "alice")
	assert.ErrorIs(t, err, combat.ErrDuplicateChallenge)

	_, err = f.engine.Challenge(ctx, "alice", "carol")
	assert.NoError(t, err)

	assert.Len(t, f.engine.PendingChallenges("alice"), 2)
	assert.Len(t, f.engine.PendingChallenges("bob"), 1)
}

func TestChallenge_ExpiresAfterTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)

	now := f.clock.Advance(DefaultChallengeTTL - time.Second)
	assert.Equal(t, 0, f.scheduler.RunDue(now))
	assert.Len(t, f.engine.PendingChallenges("bob"), 1)

	now = f.clock.Advance(time.Second)
	assert.Equal(t, 1, f.scheduler.RunDue(now))
	assert.Empty(t, f.engine.PendingChallenges("bob"))

	_, err = f.engine.Accept(ctx, "bob", "alice")
	assert.ErrorIs(t, err, combat.ErrNoPendingChallenge)

	second, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestChallenge_ExpiredWithoutSweep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)

	// No RunDue: the lookup itself must treat it as gone.
	f.clock.Advance(DefaultChallengeTTL)
	_, err = f.engine.Accept(ctx, "bob", "alice")
	assert.ErrorIs(t, err, combat.ErrNoPendingChallenge)

	_, err = f.engine.Challenge(ctx, "bob", "alice")
	require.NoError(t, err)

	// The stale expiry task must not remove the new challenge.
	f.scheduler.RunDue(f.clock.Now())
	assert.Len(t, f.engine.PendingChallenges("alice"), 1)
}

func TestAccept_RequiresExactDirection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)

	_, err = f.engine.Accept(ctx, "alice", "bob")
	assert.ErrorIs(t, err, combat.ErrNoPendingChallenge)

	d, err := f.engine.Accept(ctx, "bob", "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", d.Turn)
	assert.Equal(t, 1, d.Round)
	for _, c := range d.Combatants {
		assert.Equal(t, MaxHP, c.HP)
		assert.Equal(t, MaxHP, c.MaxHP)
	}
	assert.Empty(t, f.engine.PendingChallenges("alice"))

	active, ok := f.engine.ActiveDuel("bob")
	require.True(t, ok)
	assert.Equal(t, d.ID, active.ID)
}

func TestAccept_RequiresEidolons(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, "alice", "carol")
	require.NoError(t, err)

	_, err = f.engine.Accept(ctx, "carol", "alice")
	assert.ErrorIs(t, err, combat.ErrInsufficientAssets)
	assert.Equal(t, combat.KindInsufficientAssets, combat.KindOf(err))

	// The challenge survives a failed accept.
	assert.Len(t, f.engine.PendingChallenges("carol"), 1)
}

func TestAccept_RejectsPlayerAlreadyInDuel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.GrantEidolon(ctx, "carol", combat.Eidolon{ID: "e3", Name: "Moss Wisp"}))

	_, err := f.engine.Challenge(ctx, "carol", "alice")
	require.NoError(t, err)
	f.startDuel(t)

	_, err = f.engine.Accept(ctx, "alice", "carol")
	assert.ErrorIs(t, err, combat.ErrAlreadyInDuel)
}

func TestDecline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.Challenge(ctx, "alice", "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.Decline(ctx, "alice", "bob"), combat.ErrNoPendingChallenge)
	require.NoError(t, f.engine.Decline(ctx, "bob", "alice"))
	assert.ErrorIs(t, f.engine.Decline(ctx, "bob", "alice"), combat.ErrNoPendingChallenge)

	_, err = f.engine.Accept(ctx, "bob", "alice")
	assert.ErrorIs(t, err, combat.ErrNoPendingChallenge)
}

func TestAct_TurnOrderAndDamage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	_, err := f.engine.Act(ctx, "bob", d.ID, ActionAttack)
	assert.ErrorIs(t, err, combat.ErrNotYourTurn)

	_, err = f.engine.Act(ctx, "carol", d.ID, ActionAttack)
	assert.ErrorIs(t, err, combat.ErrNotYourTurn)

	_, err = f.engine.Act(ctx, "alice", uuid.New(), ActionAttack)
	assert.ErrorIs(t, err, combat.ErrDuelNotFound)

	_, err = f.engine.Act(ctx, "alice", d.ID, Action("dance"))
	assert.ErrorIs(t, err, combat.ErrInvalidAction)

	res, err := f.engine.Act(ctx, "alice", d.ID, ActionAttack)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Damage, 10)
	assert.LessOrEqual(t, res.Damage, 30)
	assert.Equal(t, MaxHP-res.Damage, res.TargetHP)
	assert.Equal(t, "bob", res.NextTurn)
	assert.Equal(t, 1, res.Round)

	res, err = f.engine.Act(ctx, "bob", d.ID, ActionDefend)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, res.Damage, 5)
	assert.LessOrEqual(t, res.Damage, 15)
	assert.Equal(t, 2, res.Round)

	res, err = f.engine.Act(ctx, "alice", d.ID, ActionSkill)
	require.NoError(t, err)
	assert.Equal(t, "flame lash", res.Ability)
	assert.GreaterOrEqual(t, res.Damage, 15)
	assert.LessOrEqual(t, res.Damage, 40)
	assert.Contains(t, res.Message, "Flame Lash")

	snap, ok := f.engine.Duel(d.ID)
	require.True(t, ok)
	assert.Equal(t, 4, snap.Round)
	assert.Equal(t, "bob", snap.Turn)
}

func TestAct_NormalizesActionSpelling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	res, err := f.engine.Act(ctx, "alice", d.ID, Action("ATTACK"))
	require.NoError(t, err)
	assert.Equal(t, ActionAttack, res.Action)
	assert.Empty(t, res.Ability)
	assert.GreaterOrEqual(t, res.Damage, 10)
	assert.LessOrEqual(t, res.Damage, 30)
	assert.Contains(t, res.Message, "strikes")

	res, err = f.engine.Act(ctx, "bob", d.ID, Action(" Defend "))
	require.NoError(t, err)
	assert.Equal(t, ActionDefend, res.Action)
	assert.Empty(t, res.Ability)
	assert.GreaterOrEqual(t, res.Damage, 5)
	assert.LessOrEqual(t, res.Damage, 15)
	assert.Contains(t, res.Message, "braces")
}

func TestAct_KillingBlowReportsAppliedDamage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	ad := f.engine.duels[d.ID]
	ad.mu.Lock()
	_, bob, ok := ad.duel.combatant("alice")
	require.True(t, ok)
	bob.HP = 8
	ad.mu.Unlock()

	res, err := f.engine.Act(ctx, "alice", d.ID, ActionSkill)
	require.NoError(t, err)
	require.True(t, res.Finished)
	assert.Equal(t, 8, res.Damage)
	assert.Equal(t, 0, res.TargetHP)
	assert.Contains(t, res.Message, "for 8 damage")
}

func TestAct_FullDuelSettles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	hp := map[string]int{"alice": MaxHP, "bob": MaxHP}
	turn := "alice"
	var last *ActionResult
	for i := 0; i < 40; i++ {
		res, err := f.engine.Act(ctx, turn, d.ID, ActionAttack)
		require.NoError(t, err)
		assert.LessOrEqual(t, res.TargetHP, hp[res.TargetID])
		assert.GreaterOrEqual(t, res.TargetHP, 0)
		hp[res.TargetID] = res.TargetHP
		last = res
		if res.Finished {
			break
		}
		turn = res.NextTurn
	}
	require.NotNil(t, last)
	require.True(t, last.Finished)
	assert.Equal(t, 0, last.TargetHP)
	assert.Equal(t, last.ActorID, last.WinnerID)
	require.NotNil(t, last.Settlement)

	_, ok := f.engine.Duel(d.ID)
	assert.False(t, ok)
	_, ok = f.engine.ActiveDuel("alice")
	assert.False(t, ok)

	_, err := f.engine.Act(ctx, last.LoserID, d.ID, ActionAttack)
	assert.ErrorIs(t, err, combat.ErrDuelNotFound)

	winner := f.store.Player(last.WinnerID)
	loser := f.store.Player(last.LoserID)
	assert.Equal(t, 600, winner.Currency)
	assert.Equal(t, 25, winner.Experience)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 450, loser.Currency)
	assert.Equal(t, 10, loser.Experience)
	assert.Equal(t, 1, loser.Losses)

	results := f.store.BattleResults()
	require.Len(t, results, 1)
	assert.Equal(t, d.ID, results[0].DuelID)
	assert.Empty(t, f.outbox.results)

	// Both players are free to duel again.
	f.startDuel(t)
}

func TestAct_SettlementFailureGoesToOutbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	f.store.SetError(storage.OpRecordBattleResult, errors.New("disk full"))

	turn := "alice"
	for i := 0; i < 40; i++ {
		res, err := f.engine.Act(ctx, turn, d.ID, ActionAttack)
		if res != nil && res.Finished {
			assert.ErrorIs(t, err, combat.ErrPersistence)
			require.NotNil(t, res.Settlement)
			break
		}
		require.NoError(t, err)
		turn = res.NextTurn
	}

	require.Len(t, f.outbox.results, 1)
	assert.Equal(t, d.ID, f.outbox.results[0].DuelID)

	// The duel is not restored.
	_, ok := f.engine.Duel(d.ID)
	assert.False(t, ok)
}

func TestAct_ConcurrentActsOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	d := f.startDuel(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.engine.Act(ctx, "alice", d.ID, ActionAttack); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	snap, found := f.engine.Duel(d.ID)
	require.True(t, found)
	assert.Equal(t, "bob", snap.Turn)
	assert.Equal(t, 2, snap.Round)
}
