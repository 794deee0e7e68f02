package lock

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

// Config selects the capability at startup.
//
// Driver values:
//   - "" / "native": the platform bridge; no bridge is compiled into this
//     binary, so it resolves to the unsupported capability
//   - "unsupported": fail fast on every call
//   - "simulated": in-process shield (Apps feeds the picker)
type Config struct {
	Driver   string
	Apps     []string
	Location *time.Location
}

// Open returns the capability for cfg. A *Simulated is returned as-is so
// the caller can Start/Stop its window timer.
func Open(ctx context.Context, cfg Config, kv storage.Store, log logx.Logger, opts ...SimulatedOption) (Capability, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "native":
		return Unsupported(runtime.GOOS), nil
	case "unsupported", "none":
		return Unsupported(runtime.GOOS), nil
	case "simulated", "sim":
		opts = append([]SimulatedOption{WithPicker(StaticPicker(cfg.Apps))}, opts...)
		return NewSimulated(ctx, kv, cfg.Location, log, opts...), nil
	default:
		return nil, fmt.Errorf("unknown lock.driver: %s", cfg.Driver)
	}
}
