package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"picotick/internal/clock"
	"picotick/internal/task"
)

// DefaultPoll is how often a cron-gated task checks the wall clock.
const DefaultPoll = clock.Millis(1000)

// parser accepts both 5-field and 6-field (with seconds) cron specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Gate runs a callback at most once per cron slot.
//
// The scheduler's millisecond clock has no notion of calendar time, so a gated
// task polls at a fixed interval and compares the wall clock against the cron
// schedule. A slot missed entirely (e.g. while the loop was stalled) fires once
// on the next poll, not once per missed slot.
type Gate struct {
	sched cron.Schedule
	now   func() time.Time
	next  time.Time
	fn    task.Func
}

// NewGate parses expr and wraps fn. loc defaults to time.Local, now to time.Now.
func NewGate(expr string, loc *time.Location, now func() time.Time, fn task.Func) (*Gate, error) {
	if fn == nil {
		return nil, fmt.Errorf("cron gate %q: nil callback", expr)
	}
	if loc == nil {
		loc = time.Local
	}
	sc, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("cron gate %q: %w", expr, err)
	}
	if now == nil {
		now = time.Now
	}
	g := &Gate{sched: sc, fn: fn}
	g.now = func() time.Time { return now().In(loc) }
	g.next = g.sched.Next(g.now())
	return g, nil
}

// Next is the wall-clock time of the next slot.
func (g *Gate) Next() time.Time { return g.next }

// Run is the task callback.
func (g *Gate) Run(t *task.Task) {
	n := g.now()
	if n.Before(g.next) {
		return
	}
	g.next = g.sched.Next(n)
	g.fn(t)
}

// Options tune Build.
type Options struct {
	// Poll is the check interval for cron specs; 0 means DefaultPoll.
	Poll clock.Millis
	// Location for cron specs; nil means time.Local.
	Location *time.Location
	// Now overrides the wall clock for cron specs.
	Now func() time.Time
}

// Build turns a schedule string into a task record. Interval specs become a
// plain periodic task; cron specs become a polling task guarded by a Gate.
func Build(name, schedule string, fn task.Func, state any, opt Options) (*task.Task, error) {
	sp, err := Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	switch sp.Kind {
	case KindInterval:
		return task.New(name, clock.FromDuration(sp.Every), fn, state), nil
	case KindCron:
		g, err := NewGate(sp.Cron, opt.Location, opt.Now, fn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		poll := opt.Poll
		if poll == 0 {
			poll = DefaultPoll
		}
		return task.New(name, poll, g.Run, state), nil
	default:
		return nil, fmt.Errorf("%s: unsupported schedule kind", name)
	}
}

// Validate checks a schedule string the way Build would, without building a task.
func Validate(schedule string) error {
	sp, err := Parse(schedule)
	if err != nil {
		return err
	}
	if sp.Kind == KindCron {
		if _, err := parser.Parse(sp.Cron); err != nil {
			return fmt.Errorf("cron %q: %w", sp.Cron, err)
		}
	}
	return nil
}
