package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

// Decode parses a config document strictly: unknown fields and trailing data
// are errors. YAML (by .yaml/.yml extension of name) is converted to JSON
// first so both formats share the same field names and strictness.
func Decode(name string, data []byte) (*Config, error) {
	format := "json"
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		format = "yaml"
		var doc any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse yaml config: %w", err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
		b, err := json.Marshal(stringKeys(doc))
		if err != nil {
			return nil, fmt.Errorf("convert yaml config: %w", err)
		}
		data = b
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return nil, fmt.Errorf("decode %s config: trailing data", format)
		}
		return nil, fmt.Errorf("decode %s config: %w", format, err)
	}
	return &cfg, nil
}

// stringKeys rewrites YAML maps so encoding/json accepts them.
func stringKeys(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, val := range x {
			x[k] = stringKeys(val)
		}
		return x
	case map[any]any:
		m := make(map[string]any, len(x))
		for k, val := range x {
			m[fmt.Sprint(k)] = stringKeys(val)
		}
		return m
	case []any:
		for i := range x {
			x[i] = stringKeys(x[i])
		}
		return x
	default:
		return v
	}
}

// parseDuration reads a Go duration string found at path. Empty or zero
// yields def. Negative values are rejected, and so is anything at or above
// max when max is set.
func parseDuration(path, raw string, def, max time.Duration) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	switch {
	case d < 0:
		return 0, fmt.Errorf("%s: duration must be >= 0, got %s", path, d)
	case d == 0:
		return def, nil
	case max > 0 && d >= max:
		return 0, fmt.Errorf("%s must be under %s, got %s", path, max, d)
	}
	return d, nil
}
