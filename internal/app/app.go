// Package app wires the scheduler and its host-side services into one process.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"picotick/internal/clock"
	"picotick/internal/config"
	"picotick/internal/diag"
	"picotick/internal/eventbus"
	"picotick/internal/led"
	"picotick/internal/observability/debughttp"
	rtsup "picotick/internal/runtime/supervisor"
	"picotick/internal/sensor"
	"picotick/internal/storage"
	"picotick/internal/task"
	"picotick/internal/watchdog"
	logx "picotick/pkg/logx"
)

const (
	reloadPoll    = clock.Millis(250)
	metricsPoll   = clock.Millis(1000)
	stallAfter    = 5 * time.Second
	shutdownGrace = 3 * time.Second
)

// Options replace the hardware and time sources, mostly for tests.
// Zero values select the host defaults.
type Options struct {
	Clock     clock.Clock
	Wall      func() time.Time
	Out       io.Writer
	LEDDriver led.Driver
	Ranger    sensor.Ranger
	Watchdog  watchdog.Options
}

type ledTask struct {
	cfg   config.LEDSettings
	blink *task.Task
	prox  *led.Proximity
}

// App is one running picotick process.
//
// Tasks and bus handlers all run on the goroutine that calls Run. Blocking
// work goes to supervised goroutines.
type App struct {
	cfgm     *config.Manager
	cfg      *config.Config
	settings *config.Settings
	updates  chan *config.Config

	logs *logx.Service
	log  logx.Logger
	out  io.Writer
	wall func() time.Time

	clk   clock.Clock
	reg   *task.Registry
	sched *task.Scheduler
	bus   *eventbus.Bus[sensor.Reading]

	bank     *led.Bank
	leds     []ledTask
	uptime   *task.Task
	console  *task.Task
	distance *diag.Distance
	overruns *diag.OverrunReporter
	poller   *sensor.Poller

	store storage.Store
	rec   *storage.Recorder

	metrics   *debughttp.Metrics
	debug     *debughttp.Service
	heartbeat atomic.Int64

	wd  *watchdog.Watchdog
	sup *rtsup.Supervisor
}

// New loads the config at cfgPath and builds the task set. Nothing runs
// until Run.
func New(cfgPath string, opt Options) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := config.Resolve(cfg)
		return err
	})
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, err
	}

	logs, root := logx.New(settings.Logging)
	log := root.With(logx.String("comp", "app"))
	cfgm.SetLogger(root.With(logx.String("comp", "config")))

	if opt.Clock == nil {
		opt.Clock = clock.NewSystem()
	}
	if opt.Wall == nil {
		opt.Wall = time.Now
	}
	if opt.Out == nil {
		opt.Out = os.Stdout
	}
	if opt.LEDDriver == nil {
		opt.LEDDriver = led.LogDriver{Log: root.With(logx.String("comp", "gpio"))}
	}

	a := &App{
		cfgm:     cfgm,
		cfg:      cfg,
		settings: settings,
		updates:  cfgm.Subscribe(4),
		logs:     logs,
		log:      log,
		out:      opt.Out,
		wall:     opt.Wall,
		clk:      opt.Clock,
		bank:     led.NewBank(opt.LEDDriver),
		metrics:  debughttp.NewMetrics(),
		wd:       watchdog.New(settings.Watchdog, root.With(logx.String("comp", "watchdog")), opt.Watchdog),
	}
	a.heartbeat.Store(opt.Wall().UnixNano())

	schedLog := root.With(logx.String("comp", "scheduler"))
	a.reg = task.NewRegistry(settings.Scheduler.Capacity, a.clk, task.WithFirstRun(settings.Scheduler.FirstRun))
	a.overruns = diag.NewOverrunReporter(schedLog, settings.Scheduler.OverrunBudget, 10*time.Second)
	a.sched = task.NewScheduler(a.reg,
		task.WithLogger(schedLog),
		task.WithOverrunBudget(settings.Scheduler.OverrunBudget, a.overruns.Report),
	)
	a.bus = eventbus.New[sensor.Reading](settings.BusCap, a.clk)
	a.debug = debughttp.New(debugConfig(settings.Debug), a.metrics, a.health, root.With(logx.String("comp", "debughttp")))

	if err := a.build(opt, root); err != nil {
		a.closeStore()
		_ = logs.Close()
		return nil, err
	}
	return a, nil
}

// Scheduler exposes the scheduler for inspection.
func (a *App) Scheduler() *task.Scheduler { return a.sched }

// Settings are the settings the app was built with.
func (a *App) Settings() *config.Settings { return a.settings }

// Run drives the tick loop until ctx ends or a supervised goroutine fails,
// then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		rtsup.WithCancelOnError(true),
	)
	if a.rec != nil {
		a.sup.Go("storage.writer", a.rec.Writer)
	}
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.debug.Reconfigure(a.sup.Context(), debugConfig(a.settings.Debug))

	a.wd.Ready()
	a.wd.Status(fmt.Sprintf("running %d tasks", a.reg.Len()))
	fmt.Fprintln(a.out, "System started. Entering Super Loop...")

	_ = a.sched.Run(a.sup.Context(), a.settings.Scheduler.TickSleep)
	return a.shutdown()
}

func (a *App) shutdown() error {
	a.wd.Stopping()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	a.debug.Stop(ctx)
	a.cfgm.Unsubscribe(a.updates)

	// The writer drains its queue on cancel; the tail goes after it exits.
	err := a.sup.Stop(ctx)
	if a.rec != nil {
		a.rec.Drain(ctx)
	}
	a.closeStore()
	a.log.Info("stopped", logx.Uint64("ticks", a.sched.Stats().Ticks))
	_ = a.logs.Close()

	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func (a *App) closeStore() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close failed", logx.Err(err))
	}
}

// health backs /healthz. It runs on the HTTP goroutine, so it only reads the
// heartbeat the metrics task stamps.
func (a *App) health() error {
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			return err
		}
	}
	last := time.Unix(0, a.heartbeat.Load())
	if since := a.wall().Sub(last); since > stallAfter {
		return fmt.Errorf("scheduler stalled for %s", since.Round(time.Millisecond))
	}
	return nil
}
