package config

import (
	"reflect"
	"sort"
	"strings"

	logx "picotick/pkg/logx"
)

// SummarizeChange returns the changed sections, sorted, and safe structured
// attrs for logging them. Tokens are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, "scheduler")
		attrs = append(attrs,
			logx.Int("scheduler.capacity", newCfg.Scheduler.Capacity),
			logx.String("scheduler.tick_sleep", strings.TrimSpace(newCfg.Scheduler.TickSleep)),
			logx.String("scheduler.first_run", strings.TrimSpace(newCfg.Scheduler.FirstRun)),
			logx.String("scheduler.overrun_budget", strings.TrimSpace(newCfg.Scheduler.OverrunBudget)),
		)
	}

	if oldCfg.EventBus != newCfg.EventBus {
		changed = append(changed, "eventbus")
		attrs = append(attrs, logx.Int("eventbus.capacity", newCfg.EventBus.Capacity))
	}

	if !reflect.DeepEqual(oldCfg.LEDs, newCfg.LEDs) {
		changed = append(changed, "leds")
		attrs = append(attrs, logx.Int("leds.count", len(newCfg.LEDs)))
	}

	if !reflect.DeepEqual(oldCfg.Uptime, newCfg.Uptime) {
		changed = append(changed, "uptime")
		attrs = append(attrs, logx.String("uptime.interval", strings.TrimSpace(newCfg.Uptime.Interval)))
	}
	if !reflect.DeepEqual(oldCfg.Logger, newCfg.Logger) {
		changed = append(changed, "logger")
		attrs = append(attrs, logx.String("logger.interval", strings.TrimSpace(newCfg.Logger.Interval)))
	}

	if !reflect.DeepEqual(oldCfg.Sensor, newCfg.Sensor) {
		changed = append(changed, "sensor")
		attrs = append(attrs,
			logx.Bool("sensor.enabled", newCfg.Sensor.Enabled),
			logx.String("sensor.driver", strings.TrimSpace(newCfg.Sensor.Driver)),
			logx.Int("sensor.close_threshold_cm", newCfg.Sensor.CloseThresholdCM),
		)
	}

	var oS, nS StorageConfig
	if oldCfg.Storage != nil {
		oS = *oldCfg.Storage
	}
	if newCfg.Storage != nil {
		nS = *newCfg.Storage
	}
	if oS != nS {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(nS.Driver)),
			logx.Bool("storage.path_set", strings.TrimSpace(nS.Path) != ""),
			logx.String("storage.prune", strings.TrimSpace(nS.Prune)),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	tokenChanged := strings.TrimSpace(od.Token) != strings.TrimSpace(nd.Token)
	od.Token, nd.Token = "", ""
	if od != nd || tokenChanged {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", strings.TrimSpace(nd.Addr)),
			logx.Bool("debug.token_set", strings.TrimSpace(newCfg.Debug.Token) != ""),
			logx.Bool("debug.allow_insecure", nd.AllowInsecure),
		)
	}

	if oldCfg.Watchdog != newCfg.Watchdog {
		changed = append(changed, "watchdog")
		attrs = append(attrs, logx.Bool("watchdog.enabled", newCfg.Watchdog.Enabled))
	}

	sort.Strings(changed)
	return changed, attrs
}

// hotSections can be applied to a running process.
var hotSections = map[string]bool{
	"logging": true,
	"leds":    true,
	"uptime":  true,
	"logger":  true,
	"sensor":  true, // only close_threshold_cm; see NeedsRestart
	"debug":   true,
}

// NeedsRestart lists the changed sections a running process cannot apply.
func NeedsRestart(oldCfg, newCfg *Config, changed []string) []string {
	var out []string
	for _, sec := range changed {
		if !hotSections[sec] {
			out = append(out, sec)
			continue
		}
		switch sec {
		case "sensor":
			o, n := oldCfg.Sensor, newCfg.Sensor
			o.CloseThresholdCM, n.CloseThresholdCM = 0, 0
			if !reflect.DeepEqual(o, n) {
				out = append(out, sec)
			}
		case "leds":
			if !sameLEDLayout(oldCfg.LEDs, newCfg.LEDs) {
				out = append(out, sec)
			}
		}
	}
	return out
}

// sameLEDLayout reports whether only intervals differ.
func sameLEDLayout(a, b []LEDConfig) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		x, y := a[i], b[i]
		x.Interval, y.Interval = "", ""
		if x != y {
			return false
		}
	}
	return true
}
