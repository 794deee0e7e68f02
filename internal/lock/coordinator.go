package lock

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"time"

	"prayerfirst/internal/eventbus"
	"prayerfirst/internal/schedule"
	logx "prayerfirst/pkg/logx"
)

// Coordinator is the single entry point to app blocking. It validates input,
// makes sure notifications are allowed before authorization, and otherwise
// hands results and failures through unchanged.
type Coordinator struct {
	cap   Capability
	perms Permissions
	bus   eventbus.Bus
	log   logx.Logger
}

func NewCoordinator(c Capability, perms Permissions, bus eventbus.Bus, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	if c == nil {
		c = Unsupported(runtime.GOOS)
	}
	return &Coordinator{cap: c, perms: perms, bus: bus, log: log}
}

func (c *Coordinator) Platform() string { return c.cap.Platform() }

// Capability returns the capability selected at startup.
func (c *Coordinator) Capability() Capability { return c.cap }

// Supported reports whether the capability can ever succeed here.
func (c *Coordinator) Supported() bool {
	_, isUnsupported := c.cap.(unsupported)
	return !isUnsupported
}

// RequestAuthorization asks for notification permission first (the lock
// screen relies on notifications) and then for app-blocking authorization.
func (c *Coordinator) RequestAuthorization(ctx context.Context) (bool, error) {
	if c.perms != nil {
		granted, err := c.perms.Permission(ctx)
		if err != nil {
			return false, err
		}
		if !granted {
			granted, err = c.perms.RequestPermission(ctx)
			if err != nil {
				return false, err
			}
			if !granted {
				return false, opError("request authorization", ErrNotificationsDenied, nil)
			}
		}
	}
	ok, err := c.cap.RequestAuthorization(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, opError("request authorization", ErrAuthorizationDenied, nil)
	}
	c.log.Info("app blocking authorized", logx.String("platform", c.cap.Platform()))
	return true, nil
}

// PickAppsToLock opens the picker for the global selection.
func (c *Coordinator) PickAppsToLock(ctx context.Context) (Selection, error) {
	return c.cap.PresentPicker(ctx, "")
}

// PickAppsForSchedule opens the picker for one schedule's selection.
func (c *Coordinator) PickAppsForSchedule(ctx context.Context, scheduleID string) (Selection, error) {
	if strings.TrimSpace(scheduleID) == "" {
		return Selection{}, invalid("pick apps for schedule", "schedule id required")
	}
	return c.cap.PresentPicker(ctx, scheduleID)
}

func (c *Coordinator) StartSchedule(ctx context.Context, w Window) error {
	if err := w.validate("start schedule"); err != nil {
		return err
	}
	return c.cap.StartSchedule(ctx, w)
}

func (c *Coordinator) StopSchedule(ctx context.Context, id string) error {
	return c.cap.StopSchedule(ctx, id)
}

func (c *Coordinator) StopAllSchedules(ctx context.Context) error {
	return c.cap.StopAllSchedules(ctx)
}

func (c *Coordinator) ActiveSchedules(ctx context.Context) ([]string, error) {
	return c.cap.ActiveSchedules(ctx)
}

// LockApps shields the selected apps now, outside any window.
func (c *Coordinator) LockApps(ctx context.Context) error {
	if err := c.cap.ApplyShield(ctx, ""); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

// UnlockAll lifts the shield now instead of waiting for the window to end.
func (c *Coordinator) UnlockAll(ctx context.Context) error {
	if err := c.cap.RemoveShield(ctx); err != nil {
		return err
	}
	c.publish(ctx)
	return nil
}

func (c *Coordinator) Status(ctx context.Context) (Status, error) {
	return c.cap.Status(ctx)
}

func (c *Coordinator) publish(ctx context.Context) {
	if c.bus == nil {
		return
	}
	st, err := c.cap.Status(ctx)
	if err != nil {
		c.log.Debug("lock status unavailable after change", logx.Err(err))
		return
	}
	c.bus.Publish(eventbus.Event{Type: eventbus.TypeLockChanged, Data: st})
}

// WindowFor builds the native window for a schedule: it opens at the prayer
// time and closes length later.
func WindowFor(s schedule.Schedule, length time.Duration) (Window, error) {
	if length <= 0 || length >= 24*time.Hour {
		return Window{}, errors.New("lock window length must be in (0, 24h)")
	}
	end := s.Time.On(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)).Add(length)
	return Window{
		ID:          s.ID,
		StartHour:   s.Time.Hour,
		StartMinute: s.Time.Minute,
		EndHour:     end.Hour(),
		EndMinute:   end.Minute(),
		Days:        append([]int(nil), s.DaysOfWeek...),
		Tokens:      append([]string(nil), s.AppTokens...),
	}, nil
}
