package app

import (
	"fmt"
	"strings"
	"time"

	"prayerfirst/internal/config"
	"prayerfirst/internal/lock"
	"prayerfirst/internal/notifier"
	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

// mapStorageConfig maps the storage section. A disabled store still yields a
// memory store: schedules need somewhere to live while the process runs.
func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "", "none", "memory", "mem":
		return storage.Config{Driver: "memory"}, nil
	case "file":
		return storage.Config{Driver: "file", Path: path}, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := cfg.BusyTimeout()
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, nil
	default:
		return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}

func mapNotifierConfig(cfg *config.Config, loc *time.Location) (notifier.Config, error) {
	perm, ok := notifier.ParsePermission(cfg.Notifications.Permission)
	if !ok {
		return notifier.Config{}, fmt.Errorf("notifications.permission: unknown value %q", cfg.Notifications.Permission)
	}
	return notifier.Config{
		Permission: perm,
		RatePerSec: cfg.Notifications.RatePerSec,
		QueueSize:  cfg.Notifications.QueueSize,
		Location:   loc,
	}, nil
}

func mapLockConfig(cfg *config.Config, loc *time.Location) lock.Config {
	return lock.Config{
		Driver:   cfg.Lock.Driver,
		Apps:     append([]string(nil), cfg.Lock.Apps...),
		Location: loc,
	}
}
