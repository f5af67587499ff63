package sched

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal(msg)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTask_TicksRepeatedly(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}, slog.Default())

	task.Start(context.Background())
	defer task.Stop()

	waitFor(t, func() bool { return ticks.Load() >= 3 }, "expected at least 3 ticks")
	assert.True(t, task.IsRunning())
}

func TestTask_ErrorDoesNotCancelSchedule(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return errors.New("tick failed")
	}, slog.Default())

	task.Start(context.Background())
	defer task.Stop()

	waitFor(t, func() bool { return ticks.Load() >= 3 }, "failing ticks must keep the schedule")
}

func TestTask_PanicDoesNotCancelSchedule(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		panic("boom")
	}, slog.Default())

	task.Start(context.Background())
	defer task.Stop()

	waitFor(t, func() bool { return ticks.Load() >= 2 }, "panicking ticks must keep the schedule")
}

func TestTask_StopPreventsRearm(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}, slog.Default())

	task.Start(context.Background())
	waitFor(t, func() bool { return ticks.Load() >= 1 }, "expected a tick")
	task.Stop()

	assert.False(t, task.IsRunning())
	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")
}

func TestTask_StopWaitsForInflightTick(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool

	task := New("test", time.Millisecond, func(ctx context.Context) error {
		close(entered)
		<-release
		finished.Store(true)
		return nil
	}, slog.Default())

	task.Start(context.Background())
	<-entered

	go func() {
		time.Sleep(10 * time.Millisecond)
		close(release)
	}()
	task.Stop()
	assert.True(t, finished.Load(), "Stop returns only after the in-flight tick completes")
}

func TestTask_StartWhileRunningIsNoop(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 10*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}, slog.Default())

	task.Start(context.Background())
	task.Start(context.Background())
	defer task.Stop()

	time.Sleep(35 * time.Millisecond)
	assert.LessOrEqual(t, ticks.Load(), int32(5), "double Start must not double the schedule")
}

func TestTask_Restartable(t *testing.T) {
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}, slog.Default())

	task.Start(context.Background())
	waitFor(t, func() bool { return ticks.Load() >= 1 }, "first run ticks")
	task.Stop()

	task.Start(context.Background())
	defer task.Stop()
	before := ticks.Load()
	waitFor(t, func() bool { return ticks.Load() > before }, "second run ticks")
}

func TestTask_ContextCancellationStopsLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ticks atomic.Int32
	task := New("test", 5*time.Millisecond, func(ctx context.Context) error {
		ticks.Add(1)
		return nil
	}, slog.Default())

	task.Start(ctx)
	waitFor(t, func() bool { return ticks.Load() >= 1 }, "expected a tick")
	cancel()

	time.Sleep(20 * time.Millisecond)
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "cancelled context stops the loop")
}

func TestNewDynamic_FloorAppliesToShortIntervals(t *testing.T) {
	var ticks atomic.Int32
	task := NewDynamic("test",
		func() time.Duration { return 0 }, // would spin without the floor
		25*time.Millisecond,
		func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		}, slog.Default())

	task.Start(context.Background())
	defer task.Stop()

	time.Sleep(40 * time.Millisecond)
	require.LessOrEqual(t, ticks.Load(), int32(2), "floor must pace the schedule")
}
