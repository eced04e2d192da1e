// Package watchdog reports readiness and liveness to systemd.
//
// The keepalive is a scheduler task, so systemd only hears from a process
// whose tick loop is still turning.
package watchdog

import (
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"picotick/internal/clock"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

// Notifier sends one sd_notify state string. It reports false when no
// notification socket is configured.
type Notifier func(state string) (bool, error)

// Options override the systemd hooks, mostly for tests.
type Options struct {
	Notify Notifier
	// Interval returns the WatchdogSec configured for this unit, or 0.
	Interval func() (time.Duration, error)
}

// Watchdog wraps sd_notify. A disabled Watchdog is a no-op.
type Watchdog struct {
	enabled  bool
	notify   Notifier
	interval func() (time.Duration, error)
	log      logx.Logger
	errLog   logx.Logger
	pings    uint64
}

func New(enabled bool, log logx.Logger, opt Options) *Watchdog {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opt.Notify == nil {
		opt.Notify = func(state string) (bool, error) { return daemon.SdNotify(false, state) }
	}
	if opt.Interval == nil {
		opt.Interval = func() (time.Duration, error) { return daemon.SdWatchdogEnabled(false) }
	}
	return &Watchdog{
		enabled:  enabled,
		notify:   opt.Notify,
		interval: opt.Interval,
		log:      log,
		errLog:   log.Every(30*time.Second, 1),
	}
}

func (w *Watchdog) send(state string) bool {
	if !w.enabled {
		return false
	}
	sent, err := w.notify(state)
	if err != nil {
		w.errLog.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return false
	}
	return sent
}

// Ready tells systemd startup finished.
func (w *Watchdog) Ready() {
	if w.send(daemon.SdNotifyReady) {
		w.log.Info("notified systemd: ready")
	}
}

func (w *Watchdog) Reloading() { w.send(daemon.SdNotifyReloading) }
func (w *Watchdog) Stopping()  { w.send(daemon.SdNotifyStopping) }

// Status publishes a free-form status line (systemctl status shows it).
func (w *Watchdog) Status(s string) { w.send("STATUS=" + s) }

// KeepaliveTask returns a task pinging systemd at half the configured
// watchdog period, or nil when the unit has no watchdog.
func (w *Watchdog) KeepaliveTask() *task.Task {
	if !w.enabled {
		return nil
	}
	d, err := w.interval()
	if err != nil {
		w.log.Warn("watchdog interval lookup failed", logx.Err(err))
		return nil
	}
	if d <= 0 {
		return nil
	}
	every := clock.FromDuration(d / 2)
	w.log.Info("watchdog keepalive enabled", logx.Duration("watchdog_sec", d), logx.Uint32("every_ms", uint32(every)))
	return task.NewRunner("watchdog", every, w)
}

func (w *Watchdog) Run(*task.Task) {
	if w.send(daemon.SdNotifyWatchdog) {
		w.pings++
	}
}

func (w *Watchdog) Pings() uint64 { return w.pings }
