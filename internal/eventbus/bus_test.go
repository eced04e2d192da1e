package eventbus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
)

type reading struct{ DistanceCM uint32 }

type seen struct {
	name string
	cm   uint32
	at   clock.Millis
}

func TestPublishFansOutInOrder(t *testing.T) {
	clk := clock.NewManual(1234)
	bus := New[reading](DefaultCapacity, clk)

	var got []seen
	handler := func(e Event[reading], ctx any) {
		got = append(got, seen{name: ctx.(string), cm: e.Data.DistanceCM, at: e.Time})
	}
	require.True(t, bus.Subscribe(handler, "led"))
	require.True(t, bus.Subscribe(handler, "logger"))

	require.Equal(t, 2, bus.Publish(reading{DistanceCM: 10}))
	require.Equal(t, []seen{
		{name: "led", cm: 10, at: 1234},
		{name: "logger", cm: 10, at: 1234},
	}, got)
}

func TestContextIsPerSubscriber(t *testing.T) {
	bus := New[reading](2, clock.NewManual(0))
	type last struct{ cm uint32 }
	a, b := &last{}, &last{}
	store := func(e Event[reading], ctx any) { ctx.(*last).cm = e.Data.DistanceCM }
	require.True(t, bus.Subscribe(store, a))
	require.True(t, bus.Subscribe(store, b))

	bus.Publish(reading{DistanceCM: 42})
	require.Equal(t, uint32(42), a.cm)
	require.Equal(t, uint32(42), b.cm)
}

func TestSubscribeBeyondCapacity(t *testing.T) {
	bus := New[reading](2, clock.NewManual(0))
	var order []string
	mk := func(name string) Handler[reading] {
		return func(Event[reading], any) { order = append(order, name) }
	}
	require.True(t, bus.Subscribe(mk("a"), nil))
	require.True(t, bus.Subscribe(mk("b"), nil))
	require.False(t, bus.Subscribe(mk("c"), nil))
	require.False(t, bus.Subscribe(nil, nil))
	require.Equal(t, 2, bus.Len())
	require.Equal(t, 2, bus.Cap())

	bus.Publish(reading{})
	require.Equal(t, []string{"a", "b"}, order)
}

func TestSubscribeDuringPublishRejected(t *testing.T) {
	bus := New[reading](4, clock.NewManual(0))
	var accepted []bool
	require.True(t, bus.Subscribe(func(Event[reading], any) {
		accepted = append(accepted, bus.Subscribe(func(Event[reading], any) {}, nil))
	}, nil))

	bus.Publish(reading{})
	require.Equal(t, []bool{false}, accepted)
	require.Equal(t, 1, bus.Len())

	// Outside of Publish registration works again.
	require.True(t, bus.Subscribe(func(Event[reading], any) {}, nil))
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := New[reading](0, clock.NewManual(0))
	require.Equal(t, 1, bus.Cap())
	require.Zero(t, bus.Publish(reading{DistanceCM: 5}))
}

func TestPublishAtUsesGivenTime(t *testing.T) {
	bus := New[reading](1, clock.NewManual(900))
	var at clock.Millis
	bus.Subscribe(func(e Event[reading], _ any) { at = e.Time }, nil)
	bus.PublishAt(77, reading{})
	require.Equal(t, clock.Millis(77), at)
}
