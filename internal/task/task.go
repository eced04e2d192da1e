package task

import (
	"fmt"
	"strings"
	"time"

	"picotick/internal/clock"
)

// Func is a task callback. It receives the task's own record so it can read
// its State, change Interval or swap Callback for the next due check.
type Func func(t *Task)

// Runner is implemented by state objects that drive themselves.
type Runner interface {
	Run(t *Task)
}

// Task is one periodic unit of work.
//
// The record is owned by the caller and identified by its address. The registry
// only links to it and never looks at State.
type Task struct {
	// Name is a diagnostic label; it plays no part in identity.
	Name string
	// Interval between firings. 0 fires on every tick.
	Interval clock.Millis
	// LastRun is the clock value at the last firing (or at registration).
	LastRun clock.Millis
	// Callback is the work; nil parks the task without unregistering it.
	Callback Func
	// State is private to the callback.
	State any
}

// New builds a task record. interval is in milliseconds.
func New(name string, interval clock.Millis, fn Func, state any) *Task {
	return &Task{Name: name, Interval: interval, Callback: fn, State: state}
}

// NewRunner builds a task whose State is r and whose callback is r.Run.
func NewRunner(name string, interval clock.Millis, r Runner) *Task {
	return &Task{Name: name, Interval: interval, Callback: r.Run, State: r}
}

// NextRun is when the task is next due (LastRun + Interval, wrapping).
func (t *Task) NextRun() clock.Millis { return t.LastRun + t.Interval }

// SetEvery sets Interval from a duration.
func (t *Task) SetEvery(d time.Duration) { t.Interval = clock.FromDuration(d) }

// Active reports whether the task has a callback to run.
func (t *Task) Active() bool { return t != nil && t.Callback != nil }

func (t *Task) String() string {
	if t == nil {
		return "<nil task>"
	}
	name := t.Name
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("%s(every=%dms)", name, t.Interval)
}

// FirstRun selects when a freshly registered task fires for the first time.
type FirstRun int

const (
	// FirstRunAfterInterval waits one full interval after registration.
	FirstRunAfterInterval FirstRun = iota
	// FirstRunImmediate fires on the first tick after registration.
	FirstRunImmediate
)

func (p FirstRun) String() string {
	switch p {
	case FirstRunImmediate:
		return "immediate"
	default:
		return "after_interval"
	}
}

// ParseFirstRun maps a config value to a policy. Empty means FirstRunAfterInterval.
func ParseFirstRun(raw string) (FirstRun, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "after_interval", "after-interval", "interval":
		return FirstRunAfterInterval, nil
	case "immediate", "now":
		return FirstRunImmediate, nil
	default:
		return 0, fmt.Errorf("invalid first_run policy %q (use after_interval or immediate)", raw)
	}
}
