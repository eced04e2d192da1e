package config

// Config is the on-disk configuration. YAML and JSON are both accepted; YAML
// is coerced to JSON and decoded strictly, so unknown keys are errors.
//
// All durations are Go duration strings (e.g. "5ms", "1s", "24h"). Empty
// means the documented default.
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Scheduler SchedulerConfig `json:"scheduler"`
	EventBus  EventBusConfig  `json:"eventbus"`
	LEDs      []LEDConfig     `json:"leds,omitempty"`
	Uptime    TaskConfig      `json:"uptime"`
	Sensor    SensorConfig    `json:"sensor"`
	Logger    TaskConfig      `json:"logger"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
	Debug     DebugConfig     `json:"debug"`
	Watchdog  WatchdogConfig  `json:"watchdog"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// SchedulerConfig sizes the task registry and paces the main loop.
//
// Defaults: capacity 16, tick_sleep "5ms", first_run "after_interval",
// overrun_budget "50ms" ("0s" disables overrun reporting).
type SchedulerConfig struct {
	Capacity      int    `json:"capacity,omitempty"`
	TickSleep     string `json:"tick_sleep,omitempty"`
	FirstRun      string `json:"first_run,omitempty"`
	OverrunBudget string `json:"overrun_budget,omitempty"`
}

type EventBusConfig struct {
	Capacity int `json:"capacity,omitempty"` // default 4
}

// LEDConfig is one blinking LED.
//
// Role "distance" retunes the blink interval from each reading; role
// "proximity" turns the LED off while something is closer than
// sensor.close_threshold_cm. Empty role is a plain blinker.
type LEDConfig struct {
	Name     string `json:"name"`
	Pin      int    `json:"pin"`
	Interval string `json:"interval"`
	Role     string `json:"role,omitempty"`
}

// TaskConfig is a periodic diagnostic task. Enabled defaults to true.
type TaskConfig struct {
	Enabled  *bool  `json:"enabled,omitempty"`
	Interval string `json:"interval,omitempty"` // default "1s"
}

// SensorConfig selects the ranging source.
//
// Driver "simulated" yields (now % 120) + 5 cm every period; "scripted"
// replays Script in a loop.
type SensorConfig struct {
	Enabled          bool     `json:"enabled"`
	Driver           string   `json:"driver,omitempty"`
	Poll             string   `json:"poll,omitempty"`   // default "10ms"
	Period           string   `json:"period,omitempty"` // default "1s"
	CloseThresholdCM int      `json:"close_threshold_cm,omitempty"`
	Address          int      `json:"address,omitempty"` // default 0x29
	Address8Bit      bool     `json:"address_8bit,omitempty"`
	Script           []uint32 `json:"script,omitempty"`
}

// StorageConfig controls reading persistence.
//
// Example:
//
//	storage: { driver: sqlite, path: ./readings.db, prune: "cron:0 * * * *", retain: 24h }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
	Flush       string `json:"flush,omitempty"`        // default "5s"
	Batch       int    `json:"batch,omitempty"`        // default 32
	Prune       string `json:"prune,omitempty"`        // schedule; empty disables
	Retain      string `json:"retain,omitempty"`       // default "24h"
}

// DebugConfig controls the metrics and pprof HTTP server.
//
// Security:
//   - Prefer binding to localhost (default "127.0.0.1:6060").
//   - A non-loopback address needs a token or allow_insecure.
type DebugConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Prefix        string `json:"prefix,omitempty"` // default "/debug/pprof/"
	Token         string `json:"token,omitempty"`  // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

type WatchdogConfig struct {
	Enabled bool `json:"enabled"`
}
