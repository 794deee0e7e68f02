package config

import (
	"slices"
	"strings"

	logx "prayerfirst/pkg/logx"
)

// SummarizeChange lists the sections that differ and safe log fields
// describing the new values.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.driver", newCfg.Storage.Driver))
	}
	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}
	if oldCfg.Notifications != newCfg.Notifications {
		changed = append(changed, "notifications")
		attrs = append(attrs,
			logx.String("notifications.permission", newCfg.Notifications.Permission),
			logx.Int("notifications.rate_per_sec", newCfg.Notifications.RatePerSec),
		)
	}
	if oldCfg.Lock.Driver != newCfg.Lock.Driver ||
		strings.TrimSpace(oldCfg.Lock.Window) != strings.TrimSpace(newCfg.Lock.Window) ||
		!slices.Equal(oldCfg.Lock.Apps, newCfg.Lock.Apps) {
		changed = append(changed, "lock")
		attrs = append(attrs,
			logx.String("lock.driver", newCfg.Lock.Driver),
			logx.String("lock.window", newCfg.Lock.Window),
			logx.Int("lock.apps", len(newCfg.Lock.Apps)),
		)
	}
	if oldCfg.Schedules != newCfg.Schedules {
		changed = append(changed, "schedules")
		attrs = append(attrs,
			logx.Bool("schedules.seed_presets", newCfg.Schedules.SeedPresets),
			logx.String("schedules.scan_rule", newCfg.Schedules.ScanRule),
		)
	}
	return changed, attrs
}

// RestartRequired reports sections that only take effect on restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "storage", "timezone", "lock":
			out = append(out, c)
		}
	}
	return out
}
