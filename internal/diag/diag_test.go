package diag

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
	"picotick/internal/eventbus"
	"picotick/internal/sensor"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

func TestUptimeCountsFirings(t *testing.T) {
	clk := clock.NewManual(0)
	reg := task.NewRegistry(2, clk)
	s := task.NewScheduler(reg)

	var out bytes.Buffer
	u := NewUptime(&out)
	_, err := reg.Add(task.NewRunner("uptime", 1000, u))
	require.NoError(t, err)

	for at := clock.Millis(500); at <= 3000; at += 500 {
		clk.Set(at)
		s.Tick()
	}
	require.Equal(t, uint32(3), u.Count())
	require.Equal(t, "Passed=1 secs.\nPassed=2 secs.\nPassed=3 secs.\n", out.String())
}

func TestDistanceConsole(t *testing.T) {
	clk := clock.NewManual(0)
	bus := eventbus.New[sensor.Reading](eventbus.DefaultCapacity, clk)
	var out bytes.Buffer
	d := NewDistance(&out, clk)
	require.True(t, bus.Subscribe(OnReading, d))

	_, ok := d.Last()
	require.False(t, ok)

	clk.Set(900)
	bus.Publish(sensor.Reading{DistanceCM: 42})
	clk.Set(1000)
	d.Run(task.NewRunner("logger", 1000, d))

	got, ok := d.Last()
	require.True(t, ok)
	require.Equal(t, uint32(42), got)
	require.Equal(t, "[1000] ms. Data received: 42 cm\n", out.String())
}

func TestOverrunReporterIsRateLimited(t *testing.T) {
	var buf bytes.Buffer
	r := NewOverrunReporter(logx.NewJSON(&buf, "debug"), 50*time.Millisecond, time.Hour)

	for i := 0; i < 5; i++ {
		r.Report(80 * time.Millisecond)
	}
	require.Equal(t, uint64(5), r.Count())
	require.Equal(t, 1, strings.Count(buf.String(), "tick overran budget"))
}
