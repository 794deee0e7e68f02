package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment overrides. They win over the file and survive hot reloads.
const (
	EnvLogLevel    = "PRAYERFIRST_LOG_LEVEL"
	EnvStoragePath = "PRAYERFIRST_STORAGE_PATH"
	EnvTimezone    = "PRAYERFIRST_TIMEZONE"
)

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// Variables that are already set keep their value; a missing file is fine.
func LoadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// ApplyEnv overlays the PRAYERFIRST_* variables onto cfg.
func ApplyEnv(cfg *Config) {
	applyEnv(cfg, os.LookupEnv)
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if cfg == nil {
		return
	}
	if v, ok := lookupTrim(lookup, EnvLogLevel); ok {
		cfg.Logging.Level = v
	}
	if v, ok := lookupTrim(lookup, EnvStoragePath); ok {
		cfg.Storage.Path = v
	}
	if v, ok := lookupTrim(lookup, EnvTimezone); ok {
		cfg.Timezone = v
	}
}

func lookupTrim(lookup func(string) (string, bool), key string) (string, bool) {
	v, ok := lookup(key)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}
