package app

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grid-trader/internal/config"
)

func TestNextDelay(t *testing.T) {
	cases := []struct {
		name     string
		interval time.Duration
		elapsed  time.Duration
		want     time.Duration
	}{
		{"instant cycle", 10 * time.Second, 0, 10 * time.Second},
		{"partial cycle", 10 * time.Second, 3 * time.Second, 7 * time.Second},
		{"overrun", 10 * time.Second, 15 * time.Second, time.Second},
		{"near interval", 10 * time.Second, 9500 * time.Millisecond, time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, nextDelay(tc.interval, tc.elapsed, time.Second))
		})
	}
}

func TestScheduler_StopAfterInFlightCycle(t *testing.T) {
	var runs atomic.Int32
	var sched *Scheduler
	sched = NewScheduler(func(ctx context.Context) {
		if runs.Add(1) == 3 {
			sched.Stop()
		}
	}, config.SchedulerConfig{CycleInterval: time.Millisecond, MinDelay: time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() { done <- sched.Run(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Equal(t, int32(3), runs.Load())
	assert.Equal(t, StateStopped, sched.State())
}

func TestScheduler_CyclesNeverOverlap(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		maxSeen  int
		runs     int
	)
	var sched *Scheduler
	sched = NewScheduler(func(ctx context.Context) {
		mu.Lock()
		inFlight++
		if inFlight > maxSeen {
			maxSeen = inFlight
		}
		runs++
		n := runs
		mu.Unlock()

		time.Sleep(3 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		if n == 5 {
			sched.Stop()
		}
	}, config.SchedulerConfig{CycleInterval: time.Millisecond, MinDelay: time.Millisecond}, nil)

	require.NoError(t, sched.Run(context.Background()))
	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 5, runs)
}

func TestScheduler_ContextCancelStopsWaiting(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	sched := NewScheduler(func(context.Context) {
		runs.Add(1)
		cancel()
	}, config.SchedulerConfig{CycleInterval: time.Hour, MinDelay: time.Second}, nil)

	require.NoError(t, sched.Run(ctx))
	assert.Equal(t, int32(1), runs.Load())
}

func TestScheduler_StopBeforeRunArmsNothing(t *testing.T) {
	var runs atomic.Int32
	sched := NewScheduler(func(context.Context) { runs.Add(1) }, config.SchedulerConfig{}, nil)
	sched.Stop()

	require.NoError(t, sched.Run(context.Background()))
	assert.Zero(t, runs.Load())
	assert.True(t, sched.Stopped())
}

func TestScheduler_ContextCancelInterruptsInFlightCycle(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	interrupted := make(chan struct{})
	sched := NewScheduler(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(interrupted)
	}, config.SchedulerConfig{CycleInterval: time.Hour, MinDelay: time.Second}, nil)

	done := make(chan error, 1)
	go func() { done <- sched.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not return after cancellation")
	}
	select {
	case <-interrupted:
	default:
		t.Fatal("in-flight cycle did not observe cancellation")
	}
	assert.Equal(t, StateStopped, sched.State())
}
