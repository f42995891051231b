package queue

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jwebster45206/weave-arena/pkg/combat"
	"github.com/jwebster45206/weave-arena/pkg/queue"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := NewClient(context.Background(), "redis://"+mr.Addr(), logger)
	if err != nil {
		mr.Close()
		t.Fatalf("Failed to create queue client: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return client, mr
}

func TestCommandQueue_FIFO(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewCommandQueue(client)
	ctx := context.Background()

	cmds := []*queue.Command{
		{RequestID: "r1", Type: queue.CommandStartEncounter, PlayerID: "alice"},
		{RequestID: "r2", Type: queue.CommandWeave, PlayerID: "alice", Pattern: "memory and clear"},
		{RequestID: "r3", Type: queue.CommandChallenge, PlayerID: "alice", TargetID: "bob"},
	}
	for _, c := range cmds {
		if err := q.Enqueue(ctx, c); err != nil {
			t.Fatalf("Failed to enqueue: %v", err)
		}
	}

	depth, err := q.Depth(ctx)
	if err != nil {
		t.Fatalf("Failed to get depth: %v", err)
	}
	if depth != 3 {
		t.Errorf("Expected depth 3, got %d", depth)
	}

	for _, want := range cmds {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Failed to dequeue: %v", err)
		}
		if got.RequestID != want.RequestID || got.Type != want.Type {
			t.Errorf("Expected %s/%s, got %s/%s", want.RequestID, want.Type, got.RequestID, got.Type)
		}
		if got.EnqueuedAt.IsZero() {
			t.Error("Expected EnqueuedAt to be stamped")
		}
	}

	empty, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue on empty queue failed: %v", err)
	}
	if empty != nil {
		t.Errorf("Expected nil from empty queue, got %+v", empty)
	}
}

func TestCommandQueue_RejectsInvalid(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewCommandQueue(client)
	ctx := context.Background()

	bad := []*queue.Command{
		{Type: queue.CommandScan},
		{Type: queue.CommandWeave, PlayerID: "alice"},
		{Type: queue.CommandAccept, PlayerID: "bob"},
		{Type: queue.CommandAct, PlayerID: "bob", Action: "attack"},
		{Type: "teleport", PlayerID: "bob"},
	}
	for _, c := range bad {
		if err := q.Enqueue(ctx, c); err == nil {
			t.Errorf("Expected %+v to be rejected", c)
		}
	}

	depth, _ := q.Depth(ctx)
	if depth != 0 {
		t.Errorf("Expected nothing queued, got %d", depth)
	}
}

func TestCommandQueue_BlockingDequeue(t *testing.T) {
	client, _ := setupTestRedis(t)
	q := NewCommandQueue(client)
	ctx := context.Background()

	duelID := uuid.New()
	if err := q.Enqueue(ctx, &queue.Command{RequestID: "r1", Type: queue.CommandAct, PlayerID: "alice", DuelID: duelID, Action: "skill"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}

	got, err := q.BlockingDequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Failed to dequeue: %v", err)
	}
	if got == nil || got.DuelID != duelID || got.Action != "skill" {
		t.Fatalf("Unexpected command: %+v", got)
	}
}

func TestSettlementOutbox_RetryAndDeadLetter(t *testing.T) {
	client, _ := setupTestRedis(t)
	outbox := NewSettlementOutbox(client, 3)
	ctx := context.Background()

	ok := combat.BattleResult{DuelID: uuid.New(), WinnerID: "alice", LoserID: "bob", Rounds: 7}
	bad := combat.BattleResult{DuelID: uuid.New(), WinnerID: "carol", LoserID: "dave", Rounds: 4}
	if err := outbox.Push(ctx, ok); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	if err := outbox.Push(ctx, bad); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}

	var applied []uuid.UUID
	settle := func(ctx context.Context, r combat.BattleResult) error {
		if r.DuelID == bad.DuelID {
			return errors.New("ledger locked")
		}
		applied = append(applied, r.DuelID)
		return nil
	}

	// Second item fails and stops the pass.
	n, err := outbox.Retry(ctx, 10, settle)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if n != 1 || len(applied) != 1 || applied[0] != ok.DuelID {
		t.Fatalf("Expected only the good settlement applied, got n=%d applied=%v", n, applied)
	}
	if depth, _ := outbox.Depth(ctx); depth != 1 {
		t.Fatalf("Expected failing settlement requeued, depth=%d", depth)
	}

	// Attempts 2 -> 3 reaches the limit of 3.
	if _, err := outbox.Retry(ctx, 10, settle); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if _, err := outbox.Retry(ctx, 10, settle); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	if depth, _ := outbox.Depth(ctx); depth != 0 {
		t.Errorf("Expected outbox drained, depth=%d", depth)
	}
	dead, err := outbox.DeadLetters(ctx)
	if err != nil {
		t.Fatalf("Failed to list dead letters: %v", err)
	}
	if len(dead) != 1 || dead[0].Result.DuelID != bad.DuelID {
		t.Fatalf("Expected the failing settlement dead-lettered, got %+v", dead)
	}
	if dead[0].Attempts != 3 || dead[0].LastError != "ledger locked" {
		t.Errorf("Unexpected dead letter state: %+v", dead[0])
	}
}

func TestClient_Backlog(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	if err := NewCommandQueue(client).Enqueue(ctx, &queue.Command{RequestID: "r1", Type: queue.CommandScan, PlayerID: "alice"}); err != nil {
		t.Fatalf("Failed to enqueue: %v", err)
	}
	outbox := NewSettlementOutbox(client, 1)
	if err := outbox.Push(ctx, combat.BattleResult{DuelID: uuid.New(), WinnerID: "alice", LoserID: "bob"}); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	if err := outbox.Push(ctx, combat.BattleResult{DuelID: uuid.New(), WinnerID: "bob", LoserID: "alice"}); err != nil {
		t.Fatalf("Failed to push: %v", err)
	}
	// One attempt allowed: the first failure goes straight to the dead list.
	if _, err := outbox.Retry(ctx, 1, func(context.Context, combat.BattleResult) error { return errors.New("down") }); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}

	backlog, err := client.Backlog(ctx)
	if err != nil {
		t.Fatalf("Backlog failed: %v", err)
	}
	want := Backlog{Commands: 1, Settlements: 1, DeadSettlements: 1}
	if backlog != want {
		t.Errorf("Expected %+v, got %+v", want, backlog)
	}
	if err := client.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}
