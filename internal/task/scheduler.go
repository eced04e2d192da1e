package task

import (
	"context"
	"time"

	"picotick/internal/clock"
	logx "picotick/pkg/logx"
)

// OverrunFunc is called after a tick that took longer than the configured budget.
type OverrunFunc func(took time.Duration)

// Stats are the scheduler's running counters.
type Stats struct {
	Ticks    uint64
	Fired    uint64
	Overruns uint64
	Rejected uint64 // nested Tick calls

	Active   int
	Capacity int

	LastTick time.Duration
	MaxTick  time.Duration
}

type snapEntry struct {
	h   Handle
	t   *Task
	gen uint64
}

// Scheduler fires due tasks from a Registry.
//
// Tick is not reentrant and must always be called from the same goroutine.
type Scheduler struct {
	reg *Registry
	clk clock.Clock
	log logx.Logger

	wall      func() time.Time
	budget    time.Duration
	onOverrun OverrunFunc

	snap    []snapEntry
	ticking bool
	stats   Stats
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

func WithLogger(log logx.Logger) SchedulerOption {
	return func(s *Scheduler) { s.log = log }
}

// WithOverrunBudget reports ticks slower than budget to fn. A budget of 0 disables it.
func WithOverrunBudget(budget time.Duration, fn OverrunFunc) SchedulerOption {
	return func(s *Scheduler) {
		s.budget = budget
		s.onOverrun = fn
	}
}

// WithWallClock replaces time.Now for tick duration measurement.
func WithWallClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.wall = now
		}
	}
}

// NewScheduler drives reg using the registry's clock.
func NewScheduler(reg *Registry, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		reg:  reg,
		clk:  reg.Clock(),
		log:  logx.Nop(),
		wall: time.Now,
		snap: make([]snapEntry, 0, reg.Cap()),
	}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	return s
}

// Registry returns the registry being driven.
func (s *Scheduler) Registry() *Registry { return s.reg }

// Tick runs one pass: every task that is due fires once, in registration order.
// It returns the number of callbacks invoked.
//
// The active set is captured when the tick starts. Tasks added by a callback
// wait for the next tick, even when a removed task is added straight back into
// its old slot. Tasks removed by a callback are skipped if the pass has not
// reached them yet. LastRun is updated before the callback runs, so a
// callback may freely change its own Interval or Callback. A panicking callback
// is not recovered.
func (s *Scheduler) Tick() int {
	if s.ticking {
		s.stats.Rejected++
		s.log.Warn("nested tick ignored")
		return 0
	}
	s.ticking = true
	defer func() { s.ticking = false }()

	start := s.wall()

	s.snap = s.snap[:0]
	for i := s.reg.head; i != none; i = s.reg.slots[i].next {
		sl := &s.reg.slots[i]
		s.snap = append(s.snap, snapEntry{h: Handle(i), t: sl.task, gen: sl.gen})
	}

	fired := 0
	for _, e := range s.snap {
		t := e.t
		if cur, gen := s.reg.at(e.h); cur != t || gen != e.gen || !t.Active() {
			continue
		}
		now := s.clk.Now()
		if !clock.Due(now, t.LastRun, t.Interval) {
			continue
		}
		t.LastRun = now
		t.Callback(t)
		fired++
	}

	took := s.wall().Sub(start)
	s.stats.Ticks++
	s.stats.Fired += uint64(fired)
	s.stats.LastTick = took
	if took > s.stats.MaxTick {
		s.stats.MaxTick = took
	}
	if s.budget > 0 && took > s.budget {
		s.stats.Overruns++
		if s.onOverrun != nil {
			s.onOverrun(took)
		}
	}
	return fired
}

// Stats returns a copy of the counters.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Active = s.reg.Len()
	st.Capacity = s.reg.Cap()
	return st
}

// Run calls Tick in a loop, sleeping between passes, until ctx is done.
// It always returns ctx.Err().
func (s *Scheduler) Run(ctx context.Context, sleep time.Duration) error {
	s.log.Info("scheduler loop started",
		logx.Int("tasks", s.reg.Len()),
		logx.Int("capacity", s.reg.Cap()),
		logx.Duration("sleep", sleep),
		logx.String("first_run", s.reg.Policy().String()),
	)
	var timer *time.Timer
	if sleep > 0 {
		timer = time.NewTimer(sleep)
		defer timer.Stop()
	}
	for {
		if err := ctx.Err(); err != nil {
			st := s.Stats()
			s.log.Info("scheduler loop stopped", logx.Uint64("ticks", st.Ticks), logx.Uint64("fired", st.Fired))
			return err
		}
		s.Tick()
		if timer == nil {
			continue
		}
		timer.Reset(sleep)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
	}
}
