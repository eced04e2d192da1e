// Package diag holds the diagnostic tasks: the seconds counter, the distance
// console and the tick overrun reporter.
package diag

import (
	"fmt"
	"io"
	"time"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

// Uptime counts its own firings and prints "Passed=N secs." on each one.
// With a one second interval the count is seconds since start.
type Uptime struct {
	out io.Writer
	n   uint32
}

func NewUptime(out io.Writer) *Uptime { return &Uptime{out: out} }

func (u *Uptime) Run(*task.Task) {
	u.n++
	fmt.Fprintf(u.out, "Passed=%d secs.\n", u.n)
}

func (u *Uptime) Count() uint32 { return u.n }

// Distance remembers the last valid distance from the bus and prints it on
// its own task interval.
type Distance struct {
	out  io.Writer
	clk  clock.Clock
	last uint32
	seen bool
}

func NewDistance(out io.Writer, clk clock.Clock) *Distance {
	return &Distance{out: out, clk: clk}
}

// OnReading is an eventbus.Handler; ctx must be the *Distance.
func OnReading(e eventbus.Event[sensor.Reading], ctx any) {
	d := ctx.(*Distance)
	d.last = e.Data.DistanceCM
	d.seen = true
}

// Last returns the last distance received and whether one has arrived yet.
func (d *Distance) Last() (uint32, bool) { return d.last, d.seen }

func (d *Distance) Run(*task.Task) {
	fmt.Fprintf(d.out, "[%d] ms. Data received: %d cm\n", d.clk.Now(), d.last)
}

// OverrunReporter logs slow ticks, at most one line per window.
type OverrunReporter struct {
	log    logx.Logger
	budget time.Duration
	count  uint64
}

func NewOverrunReporter(log logx.Logger, budget, window time.Duration) *OverrunReporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &OverrunReporter{log: log.Every(window, 1), budget: budget}
}

// Report has the task.OverrunFunc signature.
func (r *OverrunReporter) Report(took time.Duration) {
	r.count++
	r.log.Warn("tick overran budget",
		logx.Duration("took", took),
		logx.Duration("budget", r.budget),
		logx.Uint64("overruns", r.count),
	)
}

func (r *OverrunReporter) Count() uint64 { return r.count }
