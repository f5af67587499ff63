// Package sched provides the cancellable repeating task every polling
// loop in the client runs on.
//
// Raw timer handles threaded through call sites invite two classic bugs:
// a tick error tearing down the schedule, and a timer re-arming itself
// after it was cancelled. Task centralizes both guards: tick failures are
// logged and the schedule continues, and once Stop is called (or the
// context is done) the loop never re-arms.
package sched

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TickFunc is one poll tick. Returning an error does not cancel the
// schedule; only Stop or context cancellation does.
type TickFunc func(ctx context.Context) error

// IntervalFunc computes the delay before the next tick, consulted after
// every tick. Used for server-derived schedules.
type IntervalFunc func() time.Duration

// Task is a repeating scheduled task with start/stop/isRunning semantics.
//
// Thread-safety: all methods are safe for concurrent use. A stopped task
// may be started again.
type Task struct {
	name     string
	interval IntervalFunc
	floor    time.Duration
	tick     TickFunc
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// New creates a fixed-interval task.
func New(name string, interval time.Duration, tick TickFunc, logger *slog.Logger) *Task {
	return NewDynamic(name, func() time.Duration { return interval }, 0, tick, logger)
}

// NewDynamic creates a task whose interval is recomputed after every tick.
// floor is the minimum delay regardless of what interval returns; it
// protects the server from a schedule collapsing to a hot loop.
func NewDynamic(name string, interval IntervalFunc, floor time.Duration, tick TickFunc, logger *slog.Logger) *Task {
	if logger == nil {
		logger = slog.Default()
	}
	return &Task{
		name:     name,
		interval: interval,
		floor:    floor,
		tick:     tick,
		logger:   logger,
	}
}

// Start begins the schedule. The first tick fires after one interval, not
// immediately. Starting a running task is a no-op.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	t.running = true
	t.cancel = cancel
	t.done = done

	go t.loop(runCtx, done)
}

// Stop cancels the schedule and waits for any in-flight tick to finish.
// A tick is never interrupted mid-flight; stopping only prevents the next
// scheduled one. Stopping a stopped task is a no-op.
func (t *Task) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	cancel, done := t.cancel, t.done
	t.running = false
	t.cancel = nil
	t.done = nil
	t.mu.Unlock()

	cancel()
	<-done
}

// IsRunning reports whether the schedule is active.
func (t *Task) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

func (t *Task) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		delay := t.interval()
		if delay < t.floor {
			delay = t.floor
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Cancellation may have raced the timer; check before ticking so
		// a stopped task never fires again.
		if ctx.Err() != nil {
			return
		}

		t.runTick(ctx)
	}
}

// runTick executes one tick, containing errors and panics so a bad tick
// cannot cancel the schedule.
func (t *Task) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("poll tick panicked", "task", t.name, "panic", fmt.Sprint(r))
		}
	}()
	if err := t.tick(ctx); err != nil {
		t.logger.Debug("poll tick failed", "task", t.name, "error", err)
	}
}
