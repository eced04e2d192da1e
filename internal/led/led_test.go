package led

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

type fakePin struct {
	writes []bool
}

func (p *fakePin) Set(on bool) { p.writes = append(p.writes, on) }

type fakeDriver struct {
	pins map[uint8]*fakePin
	fail uint8
}

func newFakeDriver() *fakeDriver { return &fakeDriver{pins: map[uint8]*fakePin{}, fail: 0xff} }

func (d *fakeDriver) Output(pin uint8) (Pin, error) {
	if pin == d.fail {
		return nil, errors.New("no such gpio")
	}
	p := &fakePin{}
	d.pins[pin] = p
	return p, nil
}

func TestBankLazyInitAndFlip(t *testing.T) {
	drv := newFakeDriver()
	b := NewBank(drv)

	on, err := b.IsOn(25)
	require.NoError(t, err)
	require.False(t, on)
	require.Equal(t, []bool{false}, drv.pins[25].writes, "first touch drives the pin low")

	on, err = b.Flip(25)
	require.NoError(t, err)
	require.True(t, on)
	require.NoError(t, b.Off(25))
	require.NoError(t, b.On(25))
	require.Equal(t, []bool{false, true, false, true}, drv.pins[25].writes)
	require.Equal(t, 1, b.Len())
}

func TestBankFull(t *testing.T) {
	b := NewBank(newFakeDriver())
	for pin := uint8(0); pin < MaxLEDs; pin++ {
		require.NoError(t, b.On(pin))
	}
	require.ErrorIs(t, b.On(MaxLEDs), ErrBankFull)
	// Known pins keep working.
	_, err := b.Flip(3)
	require.NoError(t, err)
}

func TestBankDriverError(t *testing.T) {
	drv := newFakeDriver()
	drv.fail = 7
	b := NewBank(drv)
	require.Error(t, b.On(7))
	require.Equal(t, 0, b.Len())
}

func TestBlinkerTogglesEachRun(t *testing.T) {
	clk := clock.NewManual(0)
	reg := task.NewRegistry(4, clk)
	s := task.NewScheduler(reg)
	drv := newFakeDriver()
	bank := NewBank(drv)

	tk := task.NewRunner("blink", 100, NewBlinker(bank, 25, logx.Nop()))
	_, err := reg.Add(tk)
	require.NoError(t, err)

	for at := clock.Millis(100); at <= 400; at += 100 {
		clk.Set(at)
		require.Equal(t, 1, s.Tick())
	}
	require.Equal(t, []bool{false, true, false, true, false}, drv.pins[25].writes)
}

func TestBlinkerParksOnBankError(t *testing.T) {
	drv := newFakeDriver()
	drv.fail = 9
	tk := task.NewRunner("blink", 100, NewBlinker(NewBank(drv), 9, logx.Nop()))
	tk.Callback(tk)
	require.Nil(t, tk.Callback)
}

func TestProximityAndRateSubscribers(t *testing.T) {
	clk := clock.NewManual(0)
	drv := newFakeDriver()
	bank := NewBank(drv)
	bus := eventbus.New[sensor.Reading](eventbus.DefaultCapacity, clk)

	green := NewProximity(bank, 2, 25, logx.Nop())
	red := task.NewRunner("red", 500, NewBlinker(bank, 3, logx.Nop()))
	require.True(t, bus.Subscribe(OnReading, green))
	require.True(t, bus.Subscribe(OnReadingRate, red))

	require.Equal(t, 2, bus.Publish(sensor.Reading{DistanceCM: 10}))
	on, _ := bank.IsOn(2)
	require.False(t, on)
	require.Equal(t, clock.Millis(105), red.Interval)

	bus.Publish(sensor.Reading{DistanceCM: 25})
	on, _ = bank.IsOn(2)
	require.True(t, on, "equal to the threshold is not close")
	require.Equal(t, clock.Millis(255), red.Interval)

	green.SetThreshold(30)
	bus.Publish(sensor.Reading{DistanceCM: 25})
	on, _ = bank.IsOn(2)
	require.False(t, on)
}

func TestLogDriver(t *testing.T) {
	p, err := LogDriver{}.Output(1)
	require.NoError(t, err)
	p.Set(true)
	p.Set(true)
	p.Set(false)
}
