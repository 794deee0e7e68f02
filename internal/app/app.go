package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"prayerfirst/internal/config"
	"prayerfirst/internal/deeplink"
	"prayerfirst/internal/eventbus"
	"prayerfirst/internal/flow"
	"prayerfirst/internal/lock"
	"prayerfirst/internal/notifier"
	"prayerfirst/internal/reminder"
	"prayerfirst/internal/runtime/supervisor"
	"prayerfirst/internal/schedule"
	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

// App owns every long-lived component. It is built once by NewApp and
// everything else receives its collaborators from here.
type App struct {
	cfgm *config.ConfigManager
	cfg  *config.Config
	loc  *time.Location
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	kv   storage.Store

	schedules *schedule.Store
	notif     *notifier.Service
	syncer    *reminder.Syncer
	capab     lock.Capability
	coord     *lock.Coordinator
	ctrl      *flow.Controller
	links     *deeplink.Dispatcher

	autoOpen atomic.Bool
}

// NewApp loads cfgPath (plus a .env next to it) and wires the components.
func NewApp(cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(siblingEnv(cfgPath)); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	logs, log := logx.New(mapLogConfig(cfg))
	a, err := build(cfg, logs, log, nil)
	if err != nil {
		_ = logs.Close()
		return nil, err
	}
	a.cfgm = cfgm
	return a, nil
}

func siblingEnv(cfgPath string) string {
	return filepath.Join(filepath.Dir(cfgPath), ".env")
}

// build wires the components for cfg. alerts may be nil (alerts go to the log).
func build(cfg *config.Config, logs *logx.Service, log logx.Logger, alerts flow.Alerter) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	window, err := cfg.LockWindow()
	if err != nil {
		return nil, err
	}
	appLog := log.Component("app")

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(sc, log.Component("storage"))
	if err != nil {
		return nil, err
	}
	if sc.Driver == "memory" {
		appLog.Warn("storage is in-memory; schedules will not survive a restart")
	} else {
		appLog.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	bus := eventbus.New()

	ncfg, err := mapNotifierConfig(cfg, loc)
	if err != nil {
		_ = kv.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, bus, log.Component("notifier"))

	// Window-driven shield changes reach the bus here; the coordinator
	// publishes the ones it makes itself.
	capab, err := lock.Open(context.Background(), mapLockConfig(cfg, loc), kv, log.Component("lock"),
		lock.WithStatusHook(func(st lock.Status) {
			bus.Publish(eventbus.Event{Type: eventbus.TypeLockChanged, Data: st})
		}))
	if err != nil {
		_ = kv.Close()
		return nil, err
	}

	schedules := schedule.NewStore(kv, log.Component("schedules"), schedule.WithLocation(loc))
	syncer := reminder.NewSyncer(notif, kv, log.Component("reminders"))
	coord := lock.NewCoordinator(capab, notif, bus, log.Component("lock"))
	if alerts == nil {
		alerts = flow.LogAlerter{Log: log.Component("alerts")}
	}
	rule, err := schedule.ParseScanRule(cfg.Schedules.ScanRule)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("schedules.scan_rule: %w", err)
	}
	ctrl := flow.New(schedules, syncer, coord, alerts, log.Component("flow"), flow.Options{
		Window:   window,
		Bus:      bus,
		ScanRule: rule,
	})
	links := deeplink.NewDispatcher(bus, ctrl, log.Component("deeplink"))

	a := &App{
		cfg:       cfg,
		loc:       loc,
		log:       appLog,
		logs:      logs,
		bus:       bus,
		kv:        kv,
		schedules: schedules,
		notif:     notif,
		syncer:    syncer,
		capab:     capab,
		coord:     coord,
		ctrl:      ctrl,
		links:     links,
	}
	a.autoOpen.Store(cfg.Notifications.AutoOpen)
	return a, nil
}

func (a *App) Controller() *flow.Controller { return a.ctrl }
func (a *App) Schedules() *schedule.Store   { return a.schedules }
func (a *App) Notifier() *notifier.Service  { return a.notif }
func (a *App) Lock() *lock.Coordinator      { return a.coord }
func (a *App) Bus() eventbus.Bus            { return a.bus }

// Open hands a launch URL to the deep-link dispatcher. It may be called
// before Start; the link is held until the app is ready.
func (a *App) Open(url string) { a.links.Launch(url) }

// Done is closed when the app context is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads state, brings reminders and lock windows in line with it and
// starts the background loops. Deep links are delivered once it returns.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	run := a.sup.Context()

	items := a.schedules.Load(run)
	if a.cfg.Schedules.SeedPresets {
		seeded, err := a.schedules.SeedPresets(run)
		if err != nil {
			a.log.Warn("seeding presets failed", logx.Err(err))
		} else if seeded {
			a.log.Info("preset schedules seeded", logx.Int("count", len(schedule.Presets())))
			items = a.schedules.All()
		}
	}
	a.log.Info("schedules loaded", logx.Int("count", len(items)), logx.Int("enabled", len(a.schedules.Enabled())))

	a.notif.Start(run)
	if sim, ok := a.capab.(*lock.Simulated); ok {
		sim.Start()
	}
	a.log.Info("lock capability selected", logx.String("platform", a.coord.Platform()), logx.Bool("supported", a.coord.Supported()))

	a.ctrl.Resync(run)
	a.ctrl.SyncWindows(run)

	a.sup.Go("deeplink.dispatch", a.links.Run)
	a.sup.Go("eventbus.log", a.logEvents)
	a.sup.Go("notifier.autoopen", a.tapDeliveries)
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.Component("config"))
		sub := a.cfgm.Subscribe(4)
		a.sup.Go("config.reload", func(c context.Context) error {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
			return nil
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.logUpcoming(time.Now())
	a.links.MarkReady()
	a.log.Info("app started")
	return nil
}

func (a *App) logUpcoming(now time.Time) {
	if occ, ok := a.ctrl.NextLock(now.In(a.loc)); ok {
		a.log.Info("next lock", logx.String("schedule", occ.Schedule.Name), logx.Time("at", occ.At))
	}
	next := schedule.Upcoming(a.schedules.All(), now.In(a.loc), 3)
	if len(next) == 0 {
		a.log.Info("no upcoming prayer times")
	}
	for _, o := range next {
		a.log.Info("upcoming prayer",
			logx.String("schedule", o.Schedule.Name),
			logx.Time("at", o.At),
			logx.Duration("in", o.At.Sub(now).Round(time.Minute)))
	}

	regs := a.notif.Registrations()
	for i, r := range regs {
		if i == 3 {
			break
		}
		a.log.Info("upcoming reminder",
			logx.String("title", r.Title),
			logx.String("rule", r.Rule),
			logx.Time("at", r.Next))
	}
	if stored := a.syncer.StoredIDs(context.Background()); len(stored) != len(regs) {
		a.log.Warn("stored reminder ids differ from registrations",
			logx.Int("stored", len(stored)), logx.Int("registered", len(regs)))
	}
}

// SendTestReminder delivers the next registered reminder right away.
func (a *App) SendTestReminder() error {
	regs := a.notif.Registrations()
	if len(regs) == 0 {
		return errors.New("no reminders registered")
	}
	if err := a.notif.FireNow(regs[0].ID); err != nil {
		return err
	}
	a.log.Info("test reminder queued", logx.String("title", regs[0].Title))
	return nil
}

// tapDeliveries opens every delivered reminder while auto_open is set.
func (a *App) tapDeliveries(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(16)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != eventbus.TypeNotificationDelivered || !a.autoOpen.Load() {
				continue
			}
			d, ok := e.Data.(notifier.Delivery)
			if !ok {
				continue
			}
			if err := a.notif.Tap(ctx, d.ID); err != nil {
				a.log.Warn("auto open failed", logx.String("delivery", d.ID), logx.Err(err))
			}
		}
	}
}

func (a *App) logEvents(ctx context.Context) error {
	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfg
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	changed, attrs := config.SummarizeChange(prev, next)
	if len(changed) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if a.logs != nil {
		if err := a.logs.Apply(mapLogConfig(next)); err != nil {
			a.log.Warn("log sink unavailable", logx.Err(err))
		}
	}
	if ncfg, err := mapNotifierConfig(next, a.loc); err != nil {
		a.log.Warn("invalid notifications config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}
	a.autoOpen.Store(next.Notifications.AutoOpen)
	if rule, err := schedule.ParseScanRule(next.Schedules.ScanRule); err != nil {
		a.log.Warn("invalid schedules.scan_rule; keeping previous", logx.Err(err))
	} else {
		a.ctrl.SetScanRule(rule)
	}
	if restart := config.RestartRequired(changed); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.Strings("sections", restart))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(changed, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

// Stop shuts components down in reverse dependency order. Each step is
// bounded so one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		c, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		start := time.Now()
		if err := fn(c); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Stop(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	step("lock", time.Second, func(c context.Context) error {
		if sim, ok := a.capab.(*lock.Simulated); ok {
			sim.Stop(c)
		}
		return nil
	})
	step("notifier", time.Second, func(c context.Context) error {
		a.notif.Stop(c)
		a.log.Info("notifier stopped", logx.Int("delivered", len(a.notif.History())))
		return nil
	})
	step("storage", time.Second, func(context.Context) error { return a.kv.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
