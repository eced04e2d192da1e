package watchdog

import (
	"errors"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/stretchr/testify/require"

	"picotick/internal/clock"
	logx "picotick/pkg/logx"
)

type recorder struct {
	states []string
	err    error
}

func (r *recorder) notify(state string) (bool, error) {
	r.states = append(r.states, state)
	return r.err == nil, r.err
}

func TestKeepaliveAtHalfPeriod(t *testing.T) {
	rec := &recorder{}
	w := New(true, logx.Nop(), Options{
		Notify:   rec.notify,
		Interval: func() (time.Duration, error) { return 10 * time.Second, nil },
	})

	w.Ready()
	tk := w.KeepaliveTask()
	require.NotNil(t, tk)
	require.Equal(t, clock.Millis(5000), tk.Interval)

	tk.Callback(tk)
	tk.Callback(tk)
	w.Stopping()

	require.Equal(t, []string{daemon.SdNotifyReady, daemon.SdNotifyWatchdog, daemon.SdNotifyWatchdog, daemon.SdNotifyStopping}, rec.states)
	require.Equal(t, uint64(2), w.Pings())
}

func TestNoWatchdogConfigured(t *testing.T) {
	w := New(true, logx.Nop(), Options{
		Notify:   (&recorder{}).notify,
		Interval: func() (time.Duration, error) { return 0, nil },
	})
	require.Nil(t, w.KeepaliveTask())

	w = New(true, logx.Nop(), Options{
		Notify:   (&recorder{}).notify,
		Interval: func() (time.Duration, error) { return 0, errors.New("bad WATCHDOG_USEC") },
	})
	require.Nil(t, w.KeepaliveTask())
}

func TestDisabledIsNoop(t *testing.T) {
	rec := &recorder{}
	w := New(false, logx.Nop(), Options{Notify: rec.notify})
	w.Ready()
	w.Status("running")
	require.Nil(t, w.KeepaliveTask())
	require.Empty(t, rec.states)
}

func TestNotifyErrorsAreNotFatal(t *testing.T) {
	rec := &recorder{err: errors.New("socket gone")}
	w := New(true, logx.Nop(), Options{Notify: rec.notify})
	w.Run(nil)
	require.Zero(t, w.Pings())
	require.Len(t, rec.states, 1)
}
