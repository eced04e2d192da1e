package task

import (
	"testing"

	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
)

func names(r *Registry) []string {
	var out []string
	for _, t := range r.All() {
		out = append(out, t.Name)
	}
	return out
}

func TestAddIsIdempotent(t *testing.T) {
	clk := clock.NewManual(0)
	r := NewRegistry(4, clk)
	a := New("a", 100, func(*Task) {}, nil)
	b := New("b", 100, func(*Task) {}, nil)

	ha, err := r.Add(a)
	require.NoError(t, err)
	_, err = r.Add(b)
	require.NoError(t, err)

	clk.Set(50)
	again, err := r.Add(a)
	require.NoError(t, err)
	require.Equal(t, ha, again)
	require.Equal(t, 2, r.Len())
	require.Equal(t, []string{"a", "b"}, names(r))
	require.Equal(t, clock.Millis(0), a.LastRun, "re-adding must not restamp")
}

func TestAddRejectsNil(t *testing.T) {
	r := NewRegistry(2, clock.NewManual(0))
	h, err := r.Add(nil)
	require.ErrorIs(t, err, ErrNilTask)
	require.Equal(t, InvalidHandle, h)
	require.False(t, r.Contains(nil))
}

func TestCapacityEnforced(t *testing.T) {
	r := NewRegistry(2, clock.NewManual(0))
	a := New("a", 10, func(*Task) {}, nil)
	b := New("b", 20, func(*Task) {}, nil)
	c := New("c", 30, func(*Task) {}, nil)

	_, err := r.Add(a)
	require.NoError(t, err)
	_, err = r.Add(b)
	require.NoError(t, err)

	h, err := r.Add(c)
	require.ErrorIs(t, err, ErrRegistryFull)
	require.Equal(t, InvalidHandle, h)
	require.False(t, r.Contains(c))
	require.Equal(t, 2, r.Len())
	require.Equal(t, []string{"a", "b"}, names(r))
	require.Equal(t, clock.Millis(10), a.Interval)
	require.Equal(t, clock.Millis(20), b.Interval)

	// Duplicate of a registered task still succeeds when full.
	_, err = r.Add(a)
	require.NoError(t, err)
}

func TestRemoveIsIdempotent(t *testing.T) {
	r := NewRegistry(3, clock.NewManual(0))
	a := New("a", 10, func(*Task) {}, nil)
	b := New("b", 10, func(*Task) {}, nil)
	stranger := New("x", 10, func(*Task) {}, nil)
	_, _ = r.Add(a)
	_, _ = r.Add(b)

	r.Remove(stranger)
	r.Remove(nil)
	require.Equal(t, 2, r.Len())

	r.Remove(a)
	r.Remove(a)
	require.Equal(t, 1, r.Len())
	require.Equal(t, []string{"b"}, names(r))
}

func TestOrderFollowsRegistrationNotSlots(t *testing.T) {
	r := NewRegistry(3, clock.NewManual(0))
	a := New("a", 10, func(*Task) {}, nil)
	b := New("b", 10, func(*Task) {}, nil)
	c := New("c", 10, func(*Task) {}, nil)
	d := New("d", 10, func(*Task) {}, nil)
	_, _ = r.Add(a)
	_, _ = r.Add(b)
	_, _ = r.Add(c)

	r.Remove(a)
	hd, err := r.Add(d)
	require.NoError(t, err)
	require.Equal(t, Handle(0), hd, "d reuses a's slot")
	require.Equal(t, []string{"b", "c", "d"}, names(r))

	got, ok := r.Lookup(hd)
	require.True(t, ok)
	require.Same(t, d, got)
	_, ok = r.Lookup(Handle(99))
	require.False(t, ok)
}

func TestAllAllowsRemovingCurrent(t *testing.T) {
	r := NewRegistry(3, clock.NewManual(0))
	for _, n := range []string{"a", "b", "c"} {
		_, _ = r.Add(New(n, 10, func(*Task) {}, nil))
	}
	var seen []string
	for _, tk := range r.All() {
		seen = append(seen, tk.Name)
		r.Remove(tk)
	}
	require.Equal(t, []string{"a", "b", "c"}, seen)
	require.Zero(t, r.Len())
}

func TestParseFirstRun(t *testing.T) {
	p, err := ParseFirstRun("")
	require.NoError(t, err)
	require.Equal(t, FirstRunAfterInterval, p)
	p, err = ParseFirstRun("Immediate")
	require.NoError(t, err)
	require.Equal(t, FirstRunImmediate, p)
	_, err = ParseFirstRun("sometimes")
	require.Error(t, err)
}
