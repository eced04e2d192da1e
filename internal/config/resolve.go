package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"picotick/internal/led"
	"picotick/internal/sensor"
	"picotick/internal/task"
	"picotick/internal/task/trigger"
	logx "picotick/pkg/logx"
)

// Defaults applied by Resolve.
const (
	DefaultCapacity      = 16
	DefaultTickSleep     = 5 * time.Millisecond
	DefaultOverrunBudget = 50 * time.Millisecond
	DefaultBusCapacity   = 4
	DefaultPrintInterval = time.Second
	DefaultPoll          = 10 * time.Millisecond
	DefaultPeriod        = time.Second
	DefaultThresholdCM   = 25
	DefaultSensorAddr    = 0x29
	DefaultFlush         = 5 * time.Second
	DefaultBatch         = 32
	DefaultRetain        = 24 * time.Hour
	DefaultDebugAddr     = "127.0.0.1:6060"

	maxCapacity = 1024
)

// Role is what an LED does besides blinking.
type Role string

const (
	RoleBlink     Role = ""
	RoleDistance  Role = "distance"
	RoleProximity Role = "proximity"
)

// Settings is a validated Config with defaults filled in and durations parsed.
type Settings struct {
	Logging   logx.Config
	Scheduler SchedulerSettings
	BusCap    int
	LEDs      []LEDSettings
	Uptime    Periodic
	Logger    Periodic
	Sensor    SensorSettings
	Storage   StorageSettings
	Debug     DebugSettings
	Watchdog  bool
}

type SchedulerSettings struct {
	Capacity      int
	TickSleep     time.Duration
	FirstRun      task.FirstRun
	OverrunBudget time.Duration
}

type LEDSettings struct {
	Name     string
	Pin      uint8
	Interval time.Duration
	Role     Role
}

type Periodic struct {
	Enabled  bool
	Interval time.Duration
}

type SensorSettings struct {
	Enabled          bool
	Driver           string
	Poll             time.Duration
	Period           time.Duration
	CloseThresholdCM uint32
	Address          uint8
	Script           []uint32
}

type StorageSettings struct {
	Driver      string // "none", "file" or "sqlite"
	Path        string
	BusyTimeout time.Duration
	Flush       time.Duration
	Batch       int
	Prune       string
	Retain      time.Duration
}

func (s StorageSettings) Enabled() bool { return s.Driver != "none" }

type DebugSettings struct {
	Enabled       bool
	Addr          string
	Prefix        string
	Token         string
	AllowInsecure bool
	ReadTimeout   time.Duration
	IdleTimeout   time.Duration
}

// Resolve validates cfg and returns its effective settings. All problems are
// reported together.
func Resolve(cfg *Config) (*Settings, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	r := resolver{}
	s := &Settings{
		Logging: logx.Config{
			Level:   cfg.Logging.Level,
			Console: cfg.Logging.Console,
			File:    logx.FileConfig{Enabled: cfg.Logging.File.Enabled, Path: strings.TrimSpace(cfg.Logging.File.Path)},
		},
		Watchdog: cfg.Watchdog.Enabled,
	}

	// scheduler
	s.Scheduler.Capacity = r.count("scheduler.capacity", cfg.Scheduler.Capacity, DefaultCapacity, maxCapacity)
	s.Scheduler.TickSleep = r.dur("scheduler.tick_sleep", cfg.Scheduler.TickSleep, DefaultTickSleep)
	if fr, err := task.ParseFirstRun(cfg.Scheduler.FirstRun); err != nil {
		r.add(fmt.Errorf("scheduler.first_run: %w", err))
	} else {
		s.Scheduler.FirstRun = fr
	}
	if strings.TrimSpace(cfg.Scheduler.OverrunBudget) == "" {
		s.Scheduler.OverrunBudget = DefaultOverrunBudget
	} else {
		s.Scheduler.OverrunBudget = r.exact("scheduler.overrun_budget", cfg.Scheduler.OverrunBudget)
	}
	s.BusCap = r.count("eventbus.capacity", cfg.EventBus.Capacity, DefaultBusCapacity, maxCapacity)

	// leds
	if len(cfg.LEDs) > led.MaxLEDs {
		r.add(fmt.Errorf("leds: at most %d entries, got %d", led.MaxLEDs, len(cfg.LEDs)))
	}
	seenPin := map[int]string{}
	for i, l := range cfg.LEDs {
		path := fmt.Sprintf("leds[%d]", i)
		name := strings.TrimSpace(l.Name)
		if name == "" {
			name = fmt.Sprintf("led%d", l.Pin)
		}
		if l.Pin < 0 || l.Pin > 255 {
			r.add(fmt.Errorf("%s.pin: %d out of range", path, l.Pin))
			continue
		}
		if other, dup := seenPin[l.Pin]; dup {
			r.add(fmt.Errorf("%s.pin: %d already used by %q", path, l.Pin, other))
			continue
		}
		seenPin[l.Pin] = name
		role := Role(strings.ToLower(strings.TrimSpace(l.Role)))
		switch role {
		case RoleBlink, RoleDistance, RoleProximity:
		default:
			r.add(fmt.Errorf("%s.role: unknown role %q", path, l.Role))
		}
		s.LEDs = append(s.LEDs, LEDSettings{
			Name:     name,
			Pin:      uint8(l.Pin),
			Interval: r.dur(path+".interval", l.Interval, 500*time.Millisecond),
			Role:     role,
		})
	}

	s.Uptime = r.periodic("uptime", cfg.Uptime)
	s.Logger = r.periodic("logger", cfg.Logger)

	// sensor
	sc := cfg.Sensor
	s.Sensor = SensorSettings{
		Enabled: sc.Enabled,
		Driver:  strings.ToLower(strings.TrimSpace(sc.Driver)),
		Poll:    r.dur("sensor.poll", sc.Poll, DefaultPoll),
		Period:  r.dur("sensor.period", sc.Period, DefaultPeriod),
		Script:  append([]uint32(nil), sc.Script...),
	}
	if s.Sensor.Driver == "" {
		s.Sensor.Driver = "simulated"
	}
	switch s.Sensor.Driver {
	case "simulated":
	case "scripted":
		if sc.Enabled && len(sc.Script) == 0 {
			r.add(errors.New("sensor.script: scripted driver needs at least one distance"))
		}
	default:
		r.add(fmt.Errorf("sensor.driver: unknown driver %q", sc.Driver))
	}
	switch {
	case sc.CloseThresholdCM < 0:
		r.add(errors.New("sensor.close_threshold_cm: must be >= 0"))
	case sc.CloseThresholdCM == 0:
		s.Sensor.CloseThresholdCM = DefaultThresholdCM
	default:
		s.Sensor.CloseThresholdCM = uint32(sc.CloseThresholdCM)
	}
	addr := sc.Address
	if addr == 0 {
		addr = DefaultSensorAddr
	}
	if addr < 0 || addr > 0xff {
		r.add(fmt.Errorf("sensor.address: 0x%x out of range", addr))
	} else if a, err := sensor.ValidateAddr(uint8(addr), sc.Address8Bit); err != nil {
		r.add(fmt.Errorf("sensor.address: %w", err))
	} else {
		s.Sensor.Address = a
	}

	s.Storage = r.storage(cfg.Storage)

	// debug
	d := cfg.Debug
	s.Debug = DebugSettings{
		Enabled:       d.Enabled,
		Addr:          strings.TrimSpace(d.Addr),
		Prefix:        strings.TrimSpace(d.Prefix),
		Token:         strings.TrimSpace(d.Token),
		AllowInsecure: d.AllowInsecure,
		ReadTimeout:   r.exact("debug.read_timeout", d.ReadTimeout),
		IdleTimeout:   r.exact("debug.idle_timeout", d.IdleTimeout),
	}
	if s.Debug.Addr == "" {
		s.Debug.Addr = DefaultDebugAddr
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, err
	}
	return s, nil
}

type resolver struct {
	errs []error
}

func (r *resolver) add(err error) { r.errs = append(r.errs, err) }

// dur parses a duration, falling back to def for an empty or zero value.
func (r *resolver) dur(path, raw string, def time.Duration) time.Duration {
	d, ok := r.parseDur(path, raw)
	if !ok || d == 0 {
		return def
	}
	return d
}

// exact keeps an explicit zero.
func (r *resolver) exact(path, raw string) time.Duration {
	d, _ := r.parseDur(path, raw)
	return d
}

func (r *resolver) parseDur(path, raw string) (time.Duration, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, true
	}
	d, err := time.ParseDuration(s)
	switch {
	case err != nil:
		r.add(fmt.Errorf("%s: invalid duration %q: %w", path, raw, err))
		return 0, false
	case d < 0:
		r.add(fmt.Errorf("%s: duration must be >= 0", path))
		return 0, false
	}
	return d, true
}

func (r *resolver) count(path string, v, def, limit int) int {
	switch {
	case v == 0:
		return def
	case v < 0 || v > limit:
		r.add(fmt.Errorf("%s: %d out of range 1..%d", path, v, limit))
		return def
	default:
		return v
	}
}

func (r *resolver) periodic(path string, c TaskConfig) Periodic {
	p := Periodic{Enabled: true, Interval: r.dur(path+".interval", c.Interval, DefaultPrintInterval)}
	if c.Enabled != nil {
		p.Enabled = *c.Enabled
	}
	return p
}

func (r *resolver) storage(c *StorageConfig) StorageSettings {
	s := StorageSettings{Driver: "none"}
	if c == nil {
		return s
	}
	drv := strings.ToLower(strings.TrimSpace(c.Driver))
	switch drv {
	case "", "none":
		return s
	case "file", "sqlite", "sqlite3":
		if drv == "sqlite3" {
			drv = "sqlite"
		}
	default:
		r.add(fmt.Errorf("storage.driver: unknown driver %q", c.Driver))
		return s
	}
	s.Driver = drv
	s.Path = strings.TrimSpace(c.Path)
	if s.Path == "" {
		r.add(errors.New("storage.path: required when storage is enabled"))
	}
	s.BusyTimeout = r.exact("storage.busy_timeout", c.BusyTimeout)
	s.Flush = r.dur("storage.flush", c.Flush, DefaultFlush)
	s.Retain = r.dur("storage.retain", c.Retain, DefaultRetain)
	switch {
	case c.Batch == 0:
		s.Batch = DefaultBatch
	case c.Batch < 0:
		r.add(errors.New("storage.batch: must be >= 1"))
	default:
		s.Batch = c.Batch
	}
	s.Prune = strings.TrimSpace(c.Prune)
	if s.Prune != "" {
		if err := trigger.Validate(s.Prune); err != nil {
			r.add(fmt.Errorf("storage.prune: %w", err))
		}
	}
	return s
}
