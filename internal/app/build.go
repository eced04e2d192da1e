package app

import (
	"errors"
	"fmt"

	"picotick/internal/clock"
	"picotick/internal/config"
	"picotick/internal/diag"
	"picotick/internal/eventbus"
	"picotick/internal/led"
	"picotick/internal/sensor"
	"picotick/internal/storage"
	"picotick/internal/task"
	"picotick/internal/task/trigger"
	logx "picotick/pkg/logx"
)

// ErrBusFull is returned when the configured subscribers do not fit the bus.
var ErrBusFull = errors.New("app: event bus full")

// build registers the task set. The distance console subscribes first and the
// recorder last, with the LEDs in between in config order.
func (a *App) build(opt Options, root logx.Logger) error {
	s := a.settings

	a.distance = diag.NewDistance(a.out, a.clk)
	if err := a.subscribe(diag.OnReading, a.distance, "distance console"); err != nil {
		return err
	}

	ledLog := root.With(logx.String("comp", "led"))
	for _, l := range s.LEDs {
		lt := ledTask{cfg: l}
		switch l.Role {
		case config.RoleProximity:
			lt.prox = led.NewProximity(a.bank, l.Pin, s.Sensor.CloseThresholdCM, ledLog.With(logx.String("led", l.Name)))
			if err := a.subscribe(led.OnReading, lt.prox, l.Name); err != nil {
				return err
			}
		default:
			lt.blink = task.NewRunner("led."+l.Name, clock.FromDuration(l.Interval), led.NewBlinker(a.bank, l.Pin, ledLog))
			if l.Role == config.RoleDistance {
				if err := a.subscribe(led.OnReadingRate, lt.blink, l.Name); err != nil {
					return err
				}
			}
			if err := a.add(lt.blink); err != nil {
				return err
			}
		}
		a.leds = append(a.leds, lt)
	}

	if err := a.buildStorage(root); err != nil {
		return err
	}

	a.uptime = task.NewRunner("uptime", clock.FromDuration(s.Uptime.Interval), diag.NewUptime(a.out))
	a.console = task.NewRunner("distance.print", clock.FromDuration(s.Logger.Interval), a.distance)
	for _, p := range []struct {
		t   *task.Task
		cfg config.Periodic
	}{{a.uptime, s.Uptime}, {a.console, s.Logger}} {
		if !p.cfg.Enabled {
			p.t.Callback = nil
		}
		if err := a.add(p.t); err != nil {
			return err
		}
	}

	if s.Sensor.Enabled {
		r := opt.Ranger
		if r == nil {
			var err error
			if r, err = newRanger(a.clk, s.Sensor); err != nil {
				return err
			}
		}
		a.poller = sensor.NewPoller(r, a.bus, root.With(logx.String("comp", "sensor")))
		a.log.Info("sensor configured",
			logx.String("driver", s.Sensor.Driver),
			logx.Hex8("addr", s.Sensor.Address),
			logx.Duration("poll", s.Sensor.Poll),
			logx.Uint32("close_cm", s.Sensor.CloseThresholdCM),
		)
		if err := a.add(task.NewRunner("sensor.poll", clock.FromDuration(s.Sensor.Poll), a.poller)); err != nil {
			return err
		}
	}

	if err := a.add(task.New("metrics", metricsPoll, a.sampleMetrics, nil)); err != nil {
		return err
	}
	if err := a.add(task.New("config.reload", reloadPoll, a.drainReloads, nil)); err != nil {
		return err
	}
	if t := a.wd.KeepaliveTask(); t != nil {
		if err := a.add(t); err != nil {
			return err
		}
	}

	a.log.Info("tasks registered",
		logx.Int("tasks", a.reg.Len()),
		logx.Int("capacity", a.reg.Cap()),
		logx.Int("subscribers", a.bus.Len()),
		logx.String("first_run", a.reg.Policy().String()),
	)
	return nil
}

func (a *App) buildStorage(root logx.Logger) error {
	s := a.settings.Storage
	sc, ok := mapStorageConfig(s)
	if !ok {
		return nil
	}
	log := root.With(logx.String("comp", "storage"))
	store, err := storage.Open(sc, log)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.store = store
	rec, err := storage.NewRecorder(store, s.Batch, storage.RecorderOptions{Wall: a.wall, Log: log})
	if err != nil {
		return err
	}
	a.rec = rec
	if err := a.subscribe(storage.OnReading, rec, "recorder"); err != nil {
		return err
	}
	if err := a.add(task.NewRunner("storage.flush", clock.FromDuration(s.Flush), rec)); err != nil {
		return err
	}
	if s.Prune != "" {
		t, err := trigger.Build("storage.prune", s.Prune, rec.PruneFunc(s.Retain), nil, trigger.Options{Now: a.wall})
		if err != nil {
			return err
		}
		if err := a.add(t); err != nil {
			return err
		}
	}
	return nil
}

func newRanger(clk clock.Clock, s config.SensorSettings) (sensor.Ranger, error) {
	period := clock.FromDuration(s.Period)
	switch s.Driver {
	case "scripted":
		r, err := sensor.NewScripted(clk, period, s.Script)
		if err != nil {
			return nil, err
		}
		return r, nil
	default:
		return sensor.NewSimulated(clk, period), nil
	}
}

func (a *App) subscribe(fn eventbus.Handler[sensor.Reading], ctx any, who string) error {
	if !a.bus.Subscribe(fn, ctx) {
		return fmt.Errorf("%w: %s (capacity %d)", ErrBusFull, who, a.bus.Cap())
	}
	return nil
}

func (a *App) add(t *task.Task) error {
	if _, err := a.reg.Add(t); err != nil {
		return fmt.Errorf("register %s: %w", t.Name, err)
	}
	return nil
}
