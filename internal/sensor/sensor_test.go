package sensor

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

func TestSimulatedReadsEveryPeriod(t *testing.T) {
	clk := clock.NewManual(0)
	r := NewSimulated(clk, 1000)

	clk.Set(1000)
	require.False(t, r.DataReady(), "strictly more than one period is required")
	_, err := r.Read()
	require.ErrorIs(t, err, ErrNotReady)

	clk.Set(1001)
	require.True(t, r.DataReady())
	got, err := r.Read()
	require.NoError(t, err)
	require.Equal(t, Reading{DistanceCM: 1001%120 + 5, Seq: 1}, got)
	require.False(t, r.DataReady())
}

func TestScriptedLoops(t *testing.T) {
	clk := clock.NewManual(0)
	r, err := NewScripted(clk, 100, []uint32{30, 10})
	require.NoError(t, err)

	var got []uint32
	for at := clock.Millis(100); at <= 300; at += 100 {
		clk.Set(at)
		require.True(t, r.DataReady())
		rd, err := r.Read()
		require.NoError(t, err)
		got = append(got, rd.DistanceCM)
	}
	require.Equal(t, []uint32{30, 10, 30}, got)

	_, err = NewScripted(clk, 100, nil)
	require.Error(t, err)
}

type flakyRanger struct {
	ready bool
	err   error
	next  Reading
}

func (f *flakyRanger) DataReady() bool { return f.ready }
func (f *flakyRanger) Read() (Reading, error) {
	f.ready = false
	return f.next, f.err
}

func TestPollerPublishesOnlyReadyReadings(t *testing.T) {
	clk := clock.NewManual(0)
	bus := eventbus.New[Reading](2, clk)
	var got []uint32
	require.True(t, bus.Subscribe(func(e eventbus.Event[Reading], _ any) { got = append(got, e.Data.DistanceCM) }, nil))

	fr := &flakyRanger{}
	p := NewPoller(fr, bus, logx.Nop())
	tk := task.NewRunner("range", 10, p)

	p.Run(tk)
	require.Empty(t, got)

	fr.ready, fr.next = true, Reading{DistanceCM: 10, Seq: 1}
	p.Run(tk)
	p.Run(tk)
	require.Equal(t, []uint32{10}, got)

	fr.ready, fr.err = true, errors.New("i2c nack")
	p.Run(tk)
	require.Equal(t, []uint32{10}, got)

	st := p.Stats()
	require.Equal(t, uint64(4), st.Polls)
	require.Equal(t, uint64(1), st.Published)
	require.Equal(t, uint64(1), st.Errors)
	require.True(t, st.HasLast)
	require.Equal(t, uint32(10), st.Last.DistanceCM)
}

func TestAddressHelpers(t *testing.T) {
	require.True(t, ReservedAddr(0x00))
	require.True(t, ReservedAddr(0x07))
	require.True(t, ReservedAddr(0x78))
	require.False(t, ReservedAddr(0x29))

	require.Equal(t, uint8(0x29), NormalizeAddr(0x52, true))
	require.Equal(t, uint8(0x29), NormalizeAddr(0x29, false))

	a, err := ValidateAddr(0x52, true)
	require.NoError(t, err)
	require.Equal(t, uint8(0x29), a)
	_, err = ValidateAddr(0x7c, false)
	require.ErrorIs(t, err, ErrReservedAddr)
}
