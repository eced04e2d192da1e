package app

import (
	"context"
	"slices"

	"picotick/internal/config"
	"picotick/internal/observability/debughttp"
	"picotick/internal/task"
	logx "picotick/pkg/logx"
)

// drainReloads runs on the scheduler goroutine. Only the newest pending
// config is applied.
func (a *App) drainReloads(*task.Task) {
	var latest *config.Config
drain:
	for {
		select {
		case cfg, ok := <-a.updates:
			if !ok {
				a.updates = nil
				break drain
			}
			latest = cfg
		default:
			break drain
		}
	}
	if latest != nil {
		a.applyConfig(latest)
	}
}

func (a *App) applyConfig(cfg *config.Config) {
	s, err := config.Resolve(cfg)
	if err != nil {
		a.log.Warn("config reload rejected", logx.Err(err))
		return
	}
	changed, fields := config.SummarizeChange(a.cfg, cfg)
	if len(changed) == 0 {
		return
	}
	a.wd.Reloading()
	defer a.wd.Ready()

	if restart := config.NeedsRestart(a.cfg, cfg, changed); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Any("sections", restart))
	}

	if slices.Contains(changed, "logging") {
		a.logs.Apply(s.Logging)
	}
	if len(s.LEDs) == len(a.leds) {
		for i, lt := range a.leds {
			next := s.LEDs[i]
			if lt.blink == nil || next.Pin != lt.cfg.Pin || next.Role != lt.cfg.Role {
				continue
			}
			// Distance-driven LEDs get their rate from the bus.
			if next.Role != config.RoleDistance {
				lt.blink.SetEvery(next.Interval)
			}
			a.leds[i].cfg = next
		}
	}
	a.setPeriodic(a.uptime, s.Uptime)
	a.setPeriodic(a.console, s.Logger)
	for _, lt := range a.leds {
		if lt.prox != nil {
			lt.prox.SetThreshold(s.Sensor.CloseThresholdCM)
		}
	}
	if slices.Contains(changed, "debug") && a.sup != nil {
		dc := debugConfig(s.Debug)
		a.sup.Go("debughttp.reconfigure", func(ctx context.Context) error {
			a.debug.Reconfigure(ctx, dc)
			return nil
		})
	}

	eff := *a.settings
	eff.Logging, eff.Uptime, eff.Logger, eff.Debug = s.Logging, s.Uptime, s.Logger, s.Debug
	eff.Sensor.CloseThresholdCM = s.Sensor.CloseThresholdCM
	eff.LEDs = slices.Clone(eff.LEDs)
	for i, lt := range a.leds {
		eff.LEDs[i] = lt.cfg
	}
	a.cfg = cfg
	a.settings = &eff
	a.log.Info("config reloaded", fields...)
}

// setPeriodic retunes a print task and parks or resumes it. A resumed task
// waits a full interval before firing again.
func (a *App) setPeriodic(t *task.Task, p config.Periodic) {
	t.SetEvery(p.Interval)
	switch {
	case !p.Enabled:
		t.Callback = nil
	case !t.Active():
		t.Callback = t.State.(task.Runner).Run
		t.LastRun = a.clk.Now()
	}
}

// sampleMetrics runs on the scheduler goroutine so every counter it reads is
// owned by that goroutine.
func (a *App) sampleMetrics(*task.Task) {
	st := a.sched.Stats()
	sm := debughttp.Sample{
		Ticks:    st.Ticks,
		Fired:    st.Fired,
		Overruns: st.Overruns,
		Rejected: st.Rejected,
		Active:   st.Active,
		Capacity: st.Capacity,
		LastTick: st.LastTick,
		MaxTick:  st.MaxTick,
	}
	if a.poller != nil {
		ps := a.poller.Stats()
		sm.Polls, sm.Readings, sm.ReadErrors = ps.Polls, ps.Published, ps.Errors
	}
	sm.DistanceCM, sm.HasDistance = a.distance.Last()
	if a.rec != nil {
		rs := a.rec.Stats()
		sm.Written, sm.Dropped, sm.WriteErrors = rs.Written, rs.Dropped, rs.WriteErrors
	}
	if a.sup != nil {
		sm.Goroutines = a.sup.Counters().Active
	}
	a.metrics.Observe(sm)
	a.heartbeat.Store(a.wall().UnixNano())
}
