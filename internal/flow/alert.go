package flow

import (
	"context"

	logx "prayerfirst/pkg/logx"
)

// Alert is a user-facing message raised by a user action.
type Alert struct {
	Title   string
	Message string
	// OpenSettings asks the UI to offer a shortcut to system settings.
	OpenSettings bool
}

// Alerter shows alerts to the user.
type Alerter interface {
	Alert(ctx context.Context, a Alert)
}

type AlerterFunc func(ctx context.Context, a Alert)

func (f AlerterFunc) Alert(ctx context.Context, a Alert) { f(ctx, a) }

// LogAlerter writes alerts to the log. The daemon has no screen.
type LogAlerter struct{ Log logx.Logger }

func (l LogAlerter) Alert(_ context.Context, a Alert) {
	log := l.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	log.Warn(a.Title, logx.String("message", a.Message), logx.Bool("open_settings", a.OpenSettings))
}
