// Package schedule runs deferred callbacks against an injectable clock.
//
// Tasks are only executed by RunDue, so tests can advance time explicitly
// instead of waiting on wall-clock timers.
package schedule

import (
	"container/heap"
	"context"
	"log/slog"
	"sync"
	"time"
)

type task struct {
	name string
	at   time.Time
	seq  uint64
	fn   func()
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any) { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Queue is a time-ordered queue of deferred callbacks.
type Queue struct {
	mu     sync.Mutex
	tasks  taskHeap
	seq    uint64
	now    func() time.Time
	logger *slog.Logger
}

// NewQueue creates a Queue. A nil clock uses time.Now.
func NewQueue(now func() time.Time, logger *slog.Logger) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{now: now, logger: logger}
}

// Now returns the queue's current time.
func (q *Queue) Now() time.Time {
	return q.now()
}

// At schedules fn to run at the first RunDue whose time is >= at.
func (q *Queue) At(at time.Time, name string, fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.seq++
	heap.Push(&q.tasks, &task{name: name, at: at, seq: q.seq, fn: fn})
}

// After schedules fn to run d after the queue's current time.
func (q *Queue) After(d time.Duration, name string, fn func()) {
	q.At(q.now().Add(d), name, fn)
}

// RunDue runs every task due at or before now, in deadline order, and
// returns how many ran. Callbacks run without the queue lock held and may
// schedule further tasks.
func (q *Queue) RunDue(now time.Time) int {
	var due []*task
	q.mu.Lock()
	for q.tasks.Len() > 0 && !q.tasks[0].at.After(now) {
		due = append(due, heap.Pop(&q.tasks).(*task))
	}
	q.mu.Unlock()

	for _, t := range due {
		q.logger.Debug("Running scheduled task", "task", t.name, "due_at", t.at)
		t.fn()
	}
	return len(due)
}

// Len returns the number of pending tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.tasks.Len()
}

// Run drives RunDue every interval until ctx is cancelled.
func (q *Queue) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			q.logger.Info("Schedule queue stopped", "pending", q.Len())
			return
		case <-ticker.C:
			q.RunDue(q.now())
		}
	}
}
