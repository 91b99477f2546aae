package index

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaker_Coalesces(t *testing.T) {
	t.Parallel()

	w := NewWaker()
	w.Wake()
	w.Wake()
	w.Wake()

	select {
	case <-w.C():
	default:
		t.Fatal("expected a pending wake-up")
	}

	select {
	case <-w.C():
		t.Fatal("wake-ups should coalesce into one")
	default:
	}
}

func TestScheduler_RunsImmediatelyAndOnWake(t *testing.T) {
	t.Parallel()

	ft, s := discoveryTree(t)
	u := NewUpdater(ft, s, testLogger(t))
	w := NewWaker()

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runs := make(chan UpdateStats, 4)

	sched := NewScheduler(u, func() SchedulerConfig {
		return SchedulerConfig{Interval: time.Hour, Update: UpdaterConfig{Workers: 2}}
	}, w.C(), testLogger(t))
	sched.OnRun = func(stats UpdateStats, err error) {
		assert.NoError(t, err)
		runs <- stats
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	first := <-runs
	assert.Equal(t, 1, first.NewFiles)

	w.Wake()

	second := <-runs
	// The second pass scans D, found by the first.
	assert.Equal(t, 1, second.NewFiles)

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_IntervalTriggersRuns(t *testing.T) {
	t.Parallel()

	u := NewUpdater(newFakeTree(), newTestStore(t), testLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var (
		mu    sync.Mutex
		count int
	)

	reached := make(chan struct{})

	sched := NewScheduler(u, func() SchedulerConfig {
		return SchedulerConfig{Interval: 10 * time.Millisecond}
	}, nil, testLogger(t))
	sched.OnRun = func(UpdateStats, error) {
		mu.Lock()
		defer mu.Unlock()

		count++
		if count == 3 {
			close(reached)
		}
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	select {
	case <-reached:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run three times")
	}

	cancel()
	require.NoError(t, <-done)
}

func TestScheduler_ReadsConfigEachRun(t *testing.T) {
	t.Parallel()

	u := NewUpdater(newFakeTree(), newTestStore(t), testLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	var (
		mu      sync.Mutex
		workers = 1
	)

	seen := make(chan int, 8)

	sched := NewScheduler(u, func() SchedulerConfig {
		mu.Lock()
		defer mu.Unlock()

		return SchedulerConfig{Interval: time.Millisecond, Update: UpdaterConfig{Workers: workers}}
	}, nil, testLogger(t))
	sched.OnRun = func(stats UpdateStats, _ error) {
		select {
		case seen <- stats.Workers:
		default:
		}
	}

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	assert.Equal(t, 1, <-seen)

	mu.Lock()
	workers = 5
	mu.Unlock()

	deadline := time.After(5 * time.Second)

	for {
		select {
		case n := <-seen:
			if n == 5 {
				cancel()
				require.NoError(t, <-done)

				return
			}
		case <-deadline:
			t.Fatal("reloaded worker count never applied")
		}
	}
}

func TestScheduler_StopsWhenCanceled(t *testing.T) {
	t.Parallel()

	u := NewUpdater(newFakeTree(), newTestStore(t), testLogger(t))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	sched := NewScheduler(u, func() SchedulerConfig { return SchedulerConfig{} }, nil, testLogger(t))
	assert.NoError(t, sched.Run(ctx))
}
