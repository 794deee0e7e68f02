package config

// Config is the daemon configuration file (JSON or YAML).
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`

	// Timezone is an IANA name used for schedules, reminders and lock windows.
	// Empty means the host's local zone.
	Timezone string `json:"timezone,omitempty"`

	Notifications NotificationsConfig `json:"notifications"`
	Lock          LockConfig          `json:"lock"`
	Schedules     SchedulesConfig     `json:"schedules"`
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

// StorageConfig selects the key-value backend.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./prayerfirst.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotificationsConfig controls the local notification scheduler.
type NotificationsConfig struct {
	// Permission is "granted", "denied" or "prompt" (default).
	Permission string `json:"permission,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	// AutoOpen taps every delivered reminder, as a user would, for headless
	// runs without a notification UI.
	AutoOpen bool `json:"auto_open,omitempty"`
}

// LockConfig controls the app-blocking capability.
type LockConfig struct {
	// Driver is "native" (default), "unsupported" or "simulated".
	Driver string `json:"driver,omitempty"`
	// Window is how long a schedule keeps apps locked after its prayer time
	// (Go duration string, default "30m").
	Window string `json:"window,omitempty"`
	// Apps are the tokens the simulated picker returns. Empty behaves like a
	// user who cancels the picker.
	Apps []string `json:"apps,omitempty"`
}

type SchedulesConfig struct {
	// SeedPresets inserts the four preset schedules into an empty store.
	SeedPresets bool `json:"seed_presets"`
	// ScanRule is how the next prayer time is found: "first_match" (default)
	// stops at each schedule's first active weekday from today,
	// "earliest_future" keeps scanning past slots that already passed.
	ScanRule string `json:"scan_rule,omitempty"`
}
