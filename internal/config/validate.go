package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultLockWindow  = 30 * time.Minute
	DefaultBusyTimeout = time.Second
)

// Validate checks the fields that can be wrong without touching the outside
// world. All problems are reported together.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "none", "memory", "mem":
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := c.BusyTimeout(); err != nil {
		errs = append(errs, err)
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Notifications.Permission)) {
	case "", "prompt", "granted", "denied":
	default:
		errs = append(errs, fmt.Errorf("notifications.permission: want granted|denied|prompt, got %q", c.Notifications.Permission))
	}
	if c.Notifications.RatePerSec < 0 {
		errs = append(errs, errors.New("notifications.rate_per_sec must be >= 0"))
	}
	if c.Notifications.QueueSize < 0 {
		errs = append(errs, errors.New("notifications.queue_size must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Lock.Driver)) {
	case "", "native", "unsupported", "none", "simulated", "sim":
	default:
		errs = append(errs, fmt.Errorf("lock.driver: unknown driver %q", c.Lock.Driver))
	}
	if _, err := c.LockWindow(); err != nil {
		errs = append(errs, err)
	}

	switch strings.ToLower(strings.TrimSpace(c.Schedules.ScanRule)) {
	case "", "first_match", "earliest_future":
	default:
		errs = append(errs, fmt.Errorf("schedules.scan_rule: want first_match|earliest_future, got %q", c.Schedules.ScanRule))
	}

	return errors.Join(errs...)
}

// Location resolves Timezone. Empty means time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: %w", err)
	}
	return loc, nil
}

// LockWindow returns lock.window or DefaultLockWindow when unset. A window
// must close before the same prayer time next day.
func (c *Config) LockWindow() (time.Duration, error) {
	return parseDuration("lock.window", c.Lock.Window, DefaultLockWindow, 24*time.Hour)
}

// BusyTimeout returns storage.busy_timeout or DefaultBusyTimeout when unset.
func (c *Config) BusyTimeout() (time.Duration, error) {
	return parseDuration("storage.busy_timeout", c.Storage.BusyTimeout, DefaultBusyTimeout, 0)
}
