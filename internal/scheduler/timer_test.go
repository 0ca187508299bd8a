package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecurringTimer_StartTwiceArmsOneTimer(t *testing.T) {
	var runs atomic.Int64
	timer := NewRecurringTimer("test", Every(time.Hour), func(context.Context) {
		runs.Add(1)
	}, WithRunImmediately())

	assert.True(t, timer.Start())
	assert.False(t, timer.Start())
	assert.True(t, timer.IsRunning())

	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int64(1), runs.Load(), "second Start must not fire the job again")

	timer.Stop()
	assert.False(t, timer.IsRunning())
	assert.Nil(t, timer.Status().NextRun)
}

func TestRecurringTimer_StopCancelsPendingFiring(t *testing.T) {
	var runs atomic.Int64
	timer := NewRecurringTimer("test", Every(20*time.Millisecond), func(context.Context) {
		runs.Add(1)
	})

	timer.Start()
	timer.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)

	timer.Stop()
	stopped := runs.Load()
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, stopped, runs.Load(), "no firing after a single Stop")
}

func TestRecurringTimer_StopWhenNotRunning(t *testing.T) {
	timer := NewRecurringTimer("test", Every(time.Hour), func(context.Context) {})
	assert.NotPanics(t, func() {
		timer.Stop()
		timer.Stop()
	})
	assert.False(t, timer.IsRunning())
}

func TestRecurringTimer_RestartAfterStop(t *testing.T) {
	var runs atomic.Int64
	timer := NewRecurringTimer("test", Every(time.Hour), func(context.Context) {
		runs.Add(1)
	}, WithRunImmediately())

	timer.Start()
	require.Eventually(t, func() bool { return runs.Load() == 1 }, time.Second, 5*time.Millisecond)
	timer.Stop()

	assert.True(t, timer.Start())
	require.Eventually(t, func() bool { return runs.Load() == 2 }, time.Second, 5*time.Millisecond)
	timer.Stop()
}

func TestRecurringTimer_PanicDoesNotStopSchedule(t *testing.T) {
	var runs atomic.Int64
	timer := NewRecurringTimer("test", Every(10*time.Millisecond), func(context.Context) {
		if runs.Add(1) == 1 {
			panic("boom")
		}
	})

	timer.Start()
	defer timer.Stop()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	assert.True(t, timer.IsRunning())
}

func TestRecurringTimer_RecomputesDelayAfterEachRun(t *testing.T) {
	var calls atomic.Int64
	next := func(time.Time) time.Duration {
		calls.Add(1)
		return 5 * time.Millisecond
	}
	timer := NewRecurringTimer("test", next, func(context.Context) {})

	timer.Start()
	require.Eventually(t, func() bool { return calls.Load() >= 4 }, time.Second, time.Millisecond)
	timer.Stop()

	st := timer.Status()
	assert.False(t, st.Running)
	assert.NotNil(t, st.LastRun)
	assert.GreaterOrEqual(t, st.Runs, int64(3))
}

func TestRecurringTimer_StopWaitsForInFlightRun(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	timer := NewRecurringTimer("test", Every(time.Hour), func(context.Context) {
		close(started)
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
	}, WithRunImmediately())

	timer.Start()
	<-started
	timer.Stop()
	assert.True(t, finished.Load())
}
