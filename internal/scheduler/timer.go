// Package scheduler provides the self-rearming timer every background
// service is built on, plus wall-clock helpers for timezone-aware schedules.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// NextFunc returns how long to wait, measured from now, before the next run.
// It is evaluated after every run, so schedules tied to wall-clock instants
// never accumulate drift.
type NextFunc func(now time.Time) time.Duration

// Job is the work performed on each firing. It always runs to completion.
type Job func(ctx context.Context)

// Every returns a NextFunc for a fixed interval
func Every(interval time.Duration) NextFunc {
	return func(time.Time) time.Duration {
		return interval
	}
}

// Option configures a RecurringTimer
type Option func(*RecurringTimer)

// WithRunImmediately fires the job once as soon as the timer starts
func WithRunImmediately() Option {
	return func(t *RecurringTimer) {
		t.runImmediately = true
	}
}

// WithLogger sets the logger
func WithLogger(log zerolog.Logger) Option {
	return func(t *RecurringTimer) {
		t.log = log
	}
}

// WithClock overrides time.Now, used to compute the next delay
func WithClock(now func() time.Time) Option {
	return func(t *RecurringTimer) {
		t.now = now
	}
}

// Status is a snapshot of a timer's state
type Status struct {
	Name    string     `json:"name"`
	Running bool       `json:"running"`
	Runs    int64      `json:"runs"`
	LastRun *time.Time `json:"last_run,omitempty"`
	NextRun *time.Time `json:"next_run,omitempty"`
}

// RecurringTimer arms one one-shot timer at a time and re-arms it after each
// run. Start and Stop are idempotent.
type RecurringTimer struct {
	name           string
	next           NextFunc
	job            Job
	runImmediately bool
	now            func() time.Time
	log            zerolog.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	runs    int64
	lastRun time.Time
	nextRun time.Time
}

// NewRecurringTimer creates a stopped timer
func NewRecurringTimer(name string, next NextFunc, job Job, opts ...Option) *RecurringTimer {
	t := &RecurringTimer{
		name: name,
		next: next,
		job:  job,
		now:  time.Now,
		log:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("timer", name).Logger()
	return t
}

// Start arms the timer. It returns false, without arming a second timer,
// when the timer is already running.
func (t *RecurringTimer) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		t.log.Info().Msg("timer already running, start ignored")
		return false
	}

	t.running = true
	t.stopCh = make(chan struct{})
	t.doneCh = make(chan struct{})
	go t.loop(t.stopCh, t.doneCh)

	t.log.Debug().Bool("run_immediately", t.runImmediately).Msg("timer started")
	return true
}

// Stop cancels the pending firing and waits for an in-flight run to finish.
// Safe to call when not running.
func (t *RecurringTimer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	close(t.stopCh)
	done := t.doneCh
	t.nextRun = time.Time{}
	t.mu.Unlock()

	<-done
	t.log.Debug().Msg("timer stopped")
}

// IsRunning reports whether the timer is armed
func (t *RecurringTimer) IsRunning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Status returns a snapshot of the timer state
func (t *RecurringTimer) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := Status{Name: t.name, Running: t.running, Runs: t.runs}
	if !t.lastRun.IsZero() {
		last := t.lastRun
		st.LastRun = &last
	}
	if t.running && !t.nextRun.IsZero() {
		next := t.nextRun
		st.NextRun = &next
	}
	return st
}

func (t *RecurringTimer) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if t.runImmediately {
		t.fire()
	}

	for {
		now := t.now()
		delay := t.next(now)
		if delay < 0 {
			delay = 0
		}

		t.mu.Lock()
		t.nextRun = now.Add(delay)
		t.mu.Unlock()

		timer := time.NewTimer(delay)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			t.fire()
		}
	}
}

// fire runs the job once. A panic is logged and swallowed so the next
// firing is still armed.
func (t *RecurringTimer) fire() {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error().Interface("panic", r).Msg("timer job panicked")
		}
	}()

	t.mu.Lock()
	t.runs++
	t.lastRun = t.now()
	t.mu.Unlock()

	t.job(context.Background())
}
