package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// naiveDue is the comparison the counter wrap breaks: it treats timestamps as
// points on an unbounded line.
func naiveDue(now, last, interval Millis) bool {
	return int64(now) >= int64(last)+int64(interval)
}

func TestDueAcrossWrap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		last     Millis
		now      Millis
		interval Millis
		want     bool
	}{
		{name: "plain not due", last: 100, now: 599, interval: 500, want: false},
		{name: "plain due", last: 100, now: 600, interval: 500, want: true},
		{name: "wrapped due", last: Max - 99, now: 400, interval: 500, want: true},
		{name: "wrapped not due", last: Max - 99, now: 398, interval: 500, want: false},
		{name: "zero interval", last: 7, now: 7, interval: 0, want: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, Due(tt.now, tt.last, tt.interval))
		})
	}
}

func TestNaiveComparisonFailsAtWrap(t *testing.T) {
	t.Parallel()
	last := Max - 99 // 100ms before the wrap
	now := Millis(400)
	// 500ms have really elapsed.
	require.Equal(t, Millis(500), Elapsed(now, last))
	require.True(t, Due(now, last, 500))
	require.False(t, naiveDue(now, last, 500), "signed comparison should miss the wrapped deadline")
}

func TestFromDuration(t *testing.T) {
	t.Parallel()
	require.Equal(t, Millis(0), FromDuration(-time.Second))
	require.Equal(t, Millis(0), FromDuration(500*time.Microsecond))
	require.Equal(t, Millis(1500), FromDuration(1500*time.Millisecond))
	require.Equal(t, Max, FromDuration(60*24*time.Hour))
	require.Equal(t, 250*time.Millisecond, Millis(250).Duration())
}

func TestManualAdvanceWraps(t *testing.T) {
	t.Parallel()
	c := NewManual(Max - 1)
	require.Equal(t, Millis(3), c.Advance(5))
	c.Set(10)
	require.Equal(t, Millis(10), c.Now())
}

func TestSystemIsMonotonic(t *testing.T) {
	t.Parallel()
	c := NewSystem()
	a := c.Now()
	time.Sleep(2 * time.Millisecond)
	b := c.Now()
	require.GreaterOrEqual(t, uint32(Elapsed(b, a)), uint32(1))
}
