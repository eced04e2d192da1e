// Package clock provides the scheduler's millisecond time base.
//
// Timestamps are 32-bit millisecond counters that wrap after 2^32 ms (~49.7 days),
// the same width as the counters on the boards this runs on. All comparisons go
// through Elapsed, which relies on unsigned modular subtraction and stays correct
// across a wrap. Never compare two Millis values with < or >.
package clock

import (
	"sync"
	"time"
)

// Millis is a wrapping millisecond timestamp or interval.
type Millis uint32

// Max is the largest representable timestamp; the next millisecond is 0.
const Max = Millis(^uint32(0))

// Clock is a monotonic millisecond source. Now must be cheap, non-blocking
// and side-effect-free so it can be called from inside task callbacks.
type Clock interface {
	Now() Millis
}

// Elapsed returns the milliseconds from since to now, modulo 2^32.
func Elapsed(now, since Millis) Millis { return now - since }

// Due reports whether at least interval has passed since last.
func Due(now, last, interval Millis) bool { return Elapsed(now, last) >= interval }

// FromDuration converts d to Millis, truncating sub-millisecond parts.
// Negative durations map to 0; durations beyond the counter width saturate at Max.
func FromDuration(d time.Duration) Millis {
	if d <= 0 {
		return 0
	}
	ms := d.Milliseconds()
	if ms > int64(Max) {
		return Max
	}
	return Millis(ms)
}

// Duration converts m back to a time.Duration.
func (m Millis) Duration() time.Duration { return time.Duration(m) * time.Millisecond }

// System counts milliseconds since it was created ("since boot").
type System struct {
	boot time.Time
}

// NewSystem starts a boot clock at the current instant.
func NewSystem() *System { return &System{boot: time.Now()} }

func (s *System) Now() Millis {
	// time.Since uses the monotonic reading; truncation to 32 bits is the wrap.
	return Millis(uint64(time.Since(s.boot).Milliseconds()))
}

// Manual is a hand-driven clock for tests and simulations.
// It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now Millis
}

// NewManual returns a manual clock reading start.
func NewManual(start Millis) *Manual { return &Manual{now: start} }

func (m *Manual) Now() Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps the clock to t.
func (m *Manual) Set(t Millis) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Advance moves the clock forward by d, wrapping like the hardware counter.
func (m *Manual) Advance(d Millis) Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}
