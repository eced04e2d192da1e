package eventbus

import (
	"picotick/internal/clock"
)

// DefaultCapacity matches the listener table size used on the boards.
const DefaultCapacity = 4

// Event is an immutable, timestamped payload handed to every subscriber.
//
// Contract:
//   - Publish is synchronous: subscribers run on the publisher's stack, in
//     subscription order, before Publish returns.
//   - No queueing, retry or persistence. A subscriber that is not registered
//     when Publish runs never sees the event.
//   - Subscribers receive the event by value; Data should be a small value type.
type Event[T any] struct {
	Time clock.Millis
	Data T
}

// Handler receives an event together with the context it subscribed with.
type Handler[T any] func(e Event[T], ctx any)

type subscriber[T any] struct {
	fn  Handler[T]
	ctx any
}

// Bus is a fixed-capacity, single-goroutine fanout.
//
// Subscribing from inside a handler is not supported and is rejected while a
// Publish is in progress.
type Bus[T any] struct {
	clk        clock.Clock
	subs       []subscriber[T]
	publishing bool
}

// New returns a bus with room for capacity subscribers (minimum 1).
func New[T any](capacity int, clk clock.Clock) *Bus[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus[T]{clk: clk, subs: make([]subscriber[T], 0, capacity)}
}

// Subscribe appends fn with its context. It returns false, and changes nothing,
// when fn is nil, the bus is full, or a Publish is running.
func (b *Bus[T]) Subscribe(fn Handler[T], ctx any) bool {
	if fn == nil || b.publishing || len(b.subs) == cap(b.subs) {
		return false
	}
	b.subs = append(b.subs, subscriber[T]{fn: fn, ctx: ctx})
	return true
}

// Publish stamps data with the bus clock and delivers it to every subscriber.
// It returns the number of handlers invoked.
func (b *Bus[T]) Publish(data T) int {
	return b.PublishAt(b.clk.Now(), data)
}

// PublishAt is Publish with an explicit timestamp (e.g. the sensor's sample time).
func (b *Bus[T]) PublishAt(at clock.Millis, data T) int {
	e := Event[T]{Time: at, Data: data}
	// A nested Publish from a handler is allowed; only Subscribe is guarded.
	prev := b.publishing
	b.publishing = true
	defer func() { b.publishing = prev }()

	n := len(b.subs)
	for i := 0; i < n; i++ {
		s := b.subs[i]
		s.fn(e, s.ctx)
	}
	return n
}

func (b *Bus[T]) Len() int { return len(b.subs) }
func (b *Bus[T]) Cap() int { return cap(b.subs) }
