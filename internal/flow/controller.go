// Package flow turns user actions into coordinated schedule, reminder and
// lock calls, and decides which failures the user gets to see.
package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"prayerfirst/internal/deeplink"
	"prayerfirst/internal/eventbus"
	"prayerfirst/internal/lock"
	"prayerfirst/internal/reminder"
	"prayerfirst/internal/schedule"
	logx "prayerfirst/pkg/logx"
)

const settingsHint = "Open Settings to allow it, then try again."

type Options struct {
	// Window is how long apps stay locked after a prayer time.
	Window time.Duration
	Bus    eventbus.Bus
	Now    func() time.Time
	// ScanRule is used by NextLock.
	ScanRule schedule.ScanRule
}

// Controller is the prayer flow behind the screens.
type Controller struct {
	store  *schedule.Store
	syncer *reminder.Syncer
	lock   *lock.Coordinator
	alerts Alerter
	bus    eventbus.Bus
	log    logx.Logger
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	session  *time.Time
	scanRule schedule.ScanRule
}

var _ deeplink.Navigator = (*Controller)(nil)

func New(store *schedule.Store, syncer *reminder.Syncer, coord *lock.Coordinator, alerts Alerter, log logx.Logger, opts Options) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	if alerts == nil {
		alerts = LogAlerter{Log: log}
	}
	if opts.Window <= 0 {
		opts.Window = 30 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Controller{
		store:  store,
		syncer: syncer,
		lock:   coord,
		alerts: alerts,
		bus:    opts.Bus,
		log:    log,
		window: opts.Window,
		now:    opts.Now,

		scanRule: opts.ScanRule,
	}
}

func (c *Controller) alert(ctx context.Context, title string, err error) {
	a := Alert{Title: title, Message: err.Error()}
	switch {
	case lock.IsDenied(err):
		a.Message = err.Error() + ". " + settingsHint
		a.OpenSettings = true
	case lock.IsPermanent(err):
		a.Message = "App locking is not available on this device."
	}
	c.alerts.Alert(ctx, a)
}

// SaveSchedule stores s and brings reminders and its lock window in line.
func (c *Controller) SaveSchedule(ctx context.Context, s schedule.Schedule) (schedule.Schedule, error) {
	saved, err := c.store.Save(ctx, s)
	if errors.Is(err, schedule.ErrInvalid) {
		c.alert(ctx, "Couldn't save schedule", err)
		return schedule.Schedule{}, err
	}
	if err != nil {
		// The change is live in memory; keep going so reminders match it.
		c.alert(ctx, "Couldn't save schedule", err)
	}
	c.Resync(ctx)
	c.applyWindow(ctx, saved, true)
	return saved, err
}

// ToggleSchedule enables or disables schedule id. Unknown ids are ignored.
func (c *Controller) ToggleSchedule(ctx context.Context, id string, enabled bool) error {
	ok, err := c.store.Toggle(ctx, id, enabled)
	if !ok {
		c.log.Debug("toggle ignored, unknown schedule", logx.String("id", id))
		return nil
	}
	if err != nil {
		c.alert(ctx, "Couldn't update schedule", err)
	}
	c.Resync(ctx)
	if s, found := c.store.Get(id); found {
		c.applyWindow(ctx, s, true)
	}
	return err
}

func (c *Controller) DeleteSchedule(ctx context.Context, id string) error {
	ok, err := c.store.Delete(ctx, id)
	if !ok {
		return nil
	}
	if err != nil {
		c.alert(ctx, "Couldn't delete schedule", err)
	}
	c.Resync(ctx)
	c.stopWindow(ctx, id)
	return err
}

// ClearSchedules removes every schedule, reminder and lock window.
func (c *Controller) ClearSchedules(ctx context.Context) error {
	err := c.store.ClearAll(ctx)
	if err != nil {
		c.alert(ctx, "Couldn't clear schedules", err)
	}
	if cerr := c.syncer.Clear(ctx); cerr != nil {
		c.log.Warn("reminder clear failed", logx.Err(cerr))
	}
	if lerr := c.lock.StopAllSchedules(ctx); lerr != nil {
		c.logWindowErr("stop all lock windows failed", "", lerr)
	}
	return err
}

// Resync rebuilds reminders from the store. Failures are logged only.
func (c *Controller) Resync(ctx context.Context) reminder.Result {
	res, err := c.syncer.Sync(ctx, c.store.All())
	if err != nil {
		c.log.Warn("reminder sync failed", logx.Err(err))
		return res
	}
	if c.bus != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypeRemindersSynced, Data: res})
	}
	return res
}

// SyncWindows starts a lock window for every enabled schedule with apps and
// stops it for the rest. It runs without user input, so failures are logged
// and never alerted.
func (c *Controller) SyncWindows(ctx context.Context) {
	if !c.lock.Supported() {
		c.log.Debug("lock windows skipped, capability unavailable", logx.String("platform", c.lock.Platform()))
		return
	}
	for _, s := range c.store.All() {
		c.applyWindow(ctx, s, false)
	}
}

// applyWindow starts or stops the window of s. With userFacing set, failures
// the user can act on are alerted.
func (c *Controller) applyWindow(ctx context.Context, s schedule.Schedule, userFacing bool) {
	if s.ID == "" {
		return
	}
	if !s.Enabled || len(s.AppTokens) == 0 || len(s.DaysOfWeek) == 0 {
		c.stopWindow(ctx, s.ID)
		return
	}
	w, err := lock.WindowFor(s, c.window)
	if err != nil {
		c.log.Warn("lock window invalid", logx.String("schedule", s.ID), logx.Err(err))
		return
	}
	if err := c.lock.StartSchedule(ctx, w); err != nil {
		c.logWindowErr("lock window start failed", s.ID, err)
		if userFacing && !lock.IsPermanent(err) {
			c.alert(ctx, "Couldn't schedule app lock", err)
		}
	}
}

func (c *Controller) stopWindow(ctx context.Context, id string) {
	if err := c.lock.StopSchedule(ctx, id); err != nil {
		c.logWindowErr("lock window stop failed", id, err)
	}
}

func (c *Controller) logWindowErr(msg, id string, err error) {
	if lock.IsPermanent(err) {
		c.log.Debug(msg, logx.String("schedule", id), logx.Err(err))
		return
	}
	c.log.Warn(msg, logx.String("schedule", id), logx.Err(err))
}

// EnableLocking asks for notification and app-blocking permission.
func (c *Controller) EnableLocking(ctx context.Context) error {
	if _, err := c.lock.RequestAuthorization(ctx); err != nil {
		c.alert(ctx, "App locking not enabled", err)
		return err
	}
	c.SyncWindows(ctx)
	return nil
}

// PickAppsToLock shows the picker for the global selection. A cancelled
// picker returns ok=false and a nil error.
func (c *Controller) PickAppsToLock(ctx context.Context) (lock.Selection, bool, error) {
	sel, err := c.lock.PickAppsToLock(ctx)
	if err != nil {
		return lock.Selection{}, false, c.pickFailed(ctx, "", err)
	}
	c.log.Info("apps selected", logx.Int("count", sel.Count))
	return sel, true, nil
}

// PickAppsForSchedule shows the picker for schedule id and stores the
// result on the schedule.
func (c *Controller) PickAppsForSchedule(ctx context.Context, id string) (lock.Selection, bool, error) {
	if _, ok := c.store.Get(id); !ok {
		err := fmt.Errorf("%w: %s", schedule.ErrNotFound, id)
		c.alert(ctx, "Couldn't select apps", err)
		return lock.Selection{}, false, err
	}
	sel, err := c.lock.PickAppsForSchedule(ctx, id)
	if err != nil {
		return lock.Selection{}, false, c.pickFailed(ctx, id, err)
	}
	if _, err := c.store.UpdateAppTokens(ctx, id, sel.Tokens); err != nil {
		c.alert(ctx, "Couldn't save app selection", err)
		return sel, true, err
	}
	if s, ok := c.store.Get(id); ok {
		c.applyWindow(ctx, s, true)
	}
	c.log.Info("apps selected", logx.String("schedule", id), logx.Int("count", sel.Count))
	return sel, true, nil
}

func (c *Controller) pickFailed(ctx context.Context, id string, err error) error {
	if lock.IsCancelled(err) {
		c.log.Debug("app picker cancelled", logx.String("schedule", id))
		return nil
	}
	c.log.Warn("app picker failed", logx.String("schedule", id), logx.Err(err))
	c.alert(ctx, "Couldn't select apps", err)
	return err
}

// Navigate opens the prayer flow. It is the deep-link target.
func (c *Controller) Navigate(ctx context.Context, r deeplink.Route) error {
	if r != deeplink.RoutePrayer {
		return fmt.Errorf("%w: %s", deeplink.ErrRoute, r)
	}
	c.OpenPrayerFlow(ctx)
	return nil
}

// OpenPrayerFlow starts a prayer session unless one is already running.
func (c *Controller) OpenPrayerFlow(ctx context.Context) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		return *c.session
	}
	at := c.now()
	c.session = &at
	c.log.Info("prayer flow opened", logx.Time("at", at))
	return at
}

// Session returns the start of the running prayer session.
func (c *Controller) Session() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return time.Time{}, false
	}
	return *c.session, true
}

// CompletePrayer ends the session and lifts the lock right away instead of
// waiting for the window to close.
func (c *Controller) CompletePrayer(ctx context.Context) error {
	c.mu.Lock()
	started := c.session
	c.session = nil
	c.mu.Unlock()

	var dur time.Duration
	if started != nil {
		dur = c.now().Sub(*started)
	}
	c.log.Info("prayer completed", logx.Duration("duration", dur))
	if c.bus != nil && started != nil {
		c.bus.Publish(eventbus.Event{Type: eventbus.TypePrayerCompleted, Data: *started})
	}

	if err := c.lock.UnlockAll(ctx); err != nil {
		if lock.IsPermanent(err) {
			c.log.Debug("unlock skipped, capability unavailable", logx.Err(err))
			return nil
		}
		c.alert(ctx, "Couldn't unlock apps", err)
		return err
	}
	return nil
}

// NextLock is the next prayer time across the enabled schedules.
func (c *Controller) NextLock(now time.Time) (schedule.Occurrence, bool) {
	c.mu.Lock()
	rule := c.scanRule
	c.mu.Unlock()
	return schedule.NextOccurrenceWith(c.store.All(), now, rule)
}

// SetScanRule changes the rule NextLock uses.
func (c *Controller) SetScanRule(rule schedule.ScanRule) {
	c.mu.Lock()
	c.scanRule = rule
	c.mu.Unlock()
}
