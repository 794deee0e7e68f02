package notifier

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"

	"prayerfirst/internal/deeplink"
	"prayerfirst/internal/eventbus"
	"prayerfirst/internal/reminder"
	rtsup "prayerfirst/internal/runtime/supervisor"
	logx "prayerfirst/pkg/logx"
)

const historyLimit = 300

type registration struct {
	id    string
	req   reminder.Request
	entry cron.EntryID
}

type job struct {
	regID string
	req   reminder.Request
}

// Service schedules weekly notifications in process:
// cron entry -> queue -> rate limit -> event bus.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	bus eventbus.Bus
	now func() time.Time

	cfg       Config
	limiter   *rate.Limiter
	requested bool

	cron  *cron.Cron
	regs  map[string]*registration
	queue chan job
	sup   *rtsup.Supervisor

	hmu     sync.Mutex
	history []Delivery
}

var _ reminder.Scheduler = (*Service)(nil)

func New(cfg Config, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	s := &Service{
		log:   log,
		bus:   bus,
		now:   time.Now,
		cron:  cron.New(cron.WithLocation(cfg.Location)),
		regs:  map[string]*registration{},
		queue: make(chan job, cfg.QueueSize),
	}
	s.applyLocked(cfg)
	return s
}

// Apply updates permission mode and rate. Location and queue size are fixed
// at construction.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	cfg.Location = s.cfg.Location
	cfg.QueueSize = s.cfg.QueueSize
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Permission == "" {
		cfg.Permission = PermissionPrompt
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 2
	}
	s.cfg = cfg
	// Burst of one rate-second so a few prayers sharing a minute go out together.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start runs the cron timer and the delivery worker. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.sup != nil {
		s.mu.Unlock()
		return
	}
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log))
	sup := s.sup
	s.mu.Unlock()

	s.cron.Start()
	sup.GoRestart("notifier.deliver", func(c context.Context) error {
		s.deliverLoop(c)
		if c.Err() != nil {
			return c.Err()
		}
		return errors.New("notifier delivery loop exited unexpectedly")
	})
}

// Stop halts the timer and the worker. Queued deliveries are dropped.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	_ = sup.Stop(ctx)
}

func (s *Service) Permission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantedLocked(), nil
}

func (s *Service) RequestPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = true
	granted := s.grantedLocked()
	s.log.Info("notification permission requested", logx.Bool("granted", granted))
	return granted, nil
}

func (s *Service) grantedLocked() bool {
	switch s.cfg.Permission {
	case PermissionGranted:
		return true
	case PermissionPrompt:
		return s.requested
	default:
		return false
	}
}

// ScheduleWeekly registers req and returns its id.
func (s *Service) ScheduleWeekly(ctx context.Context, req reminder.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	t := req.Trigger
	if t.Weekday < time.Sunday || t.Weekday > time.Saturday || t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return "", fmt.Errorf("notifier: invalid trigger %s", t)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.grantedLocked() {
		return "", reminder.ErrPermissionDenied
	}
	id := uuid.NewString()
	spec := fmt.Sprintf("%d %d * * %d", t.Minute, t.Hour, int(t.Weekday))
	entry, err := s.cron.AddFunc(spec, func() { s.enqueue(id) })
	if err != nil {
		return "", fmt.Errorf("notifier: schedule %q: %w", spec, err)
	}
	req.Data = maps.Clone(req.Data)
	s.regs[id] = &registration{id: id, req: req, entry: entry}
	s.log.Debug("notification scheduled",
		logx.String("id", id),
		logx.String("schedule", req.ScheduleID),
		logx.String("trigger", t.String()))
	return id, nil
}

// Cancel removes a registration. Unknown ids are ignored.
func (s *Service) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.regs[id]
	if !ok {
		return nil
	}
	s.cron.Remove(r.entry)
	delete(s.regs, id)
	return nil
}

// Registrations lists active registrations ordered by next fire time.
func (s *Service) Registrations() []Registration {
	s.mu.Lock()
	now := s.now().In(s.cfg.Location)
	out := make([]Registration, 0, len(s.regs))
	for _, r := range s.regs {
		reg := Registration{
			ID:         r.id,
			ScheduleID: r.req.ScheduleID,
			Title:      r.req.Title,
			Trigger:    r.req.Trigger,
			Rule:       r.req.Trigger.Rule(),
		}
		if next, err := r.req.Trigger.Next(now); err == nil {
			reg.Next = next
		}
		out = append(out, reg)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Next.Equal(out[j].Next) {
			return out[i].Next.Before(out[j].Next)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FireNow queues the registration for immediate delivery.
func (s *Service) FireNow(id string) error {
	if !s.enqueue(id) {
		return fmt.Errorf("%w: %s", ErrUnknownRegistration, id)
	}
	return nil
}

func (s *Service) enqueue(id string) bool {
	s.mu.Lock()
	r, ok := s.regs[id]
	var j job
	if ok {
		j = job{regID: id, req: r.req}
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case s.queue <- j:
	default:
		s.log.Warn("notification dropped, queue full", logx.String("id", id))
	}
	return true
}

func (s *Service) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.mu.Lock()
			lim := s.limiter
			s.mu.Unlock()
			if err := lim.Wait(ctx); err != nil {
				return
			}
			s.deliver(j)
		}
	}
}

func (s *Service) deliver(j job) {
	d := Delivery{
		ID:             uuid.NewString(),
		RegistrationID: j.regID,
		ScheduleID:     j.req.ScheduleID,
		Title:          j.req.Title,
		Body:           j.req.Body,
		Data:           maps.Clone(j.req.Data),
		At:             s.now(),
	}
	s.hmu.Lock()
	s.history = append(s.history, d)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.hmu.Unlock()

	s.log.Info("notification delivered",
		logx.String("id", d.ID),
		logx.String("schedule", d.ScheduleID),
		logx.String("title", d.Title))
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeNotificationDelivered, Time: d.At, Data: d})
	}
}

// History returns delivered notifications, oldest first.
func (s *Service) History() []Delivery {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]Delivery(nil), s.history...)
}

// Tap opens the deep link carried by a delivered notification.
func (s *Service) Tap(ctx context.Context, deliveryID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var (
		d     Delivery
		found bool
	)
	s.hmu.Lock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == deliveryID {
			d, found = s.history[i], true
			break
		}
	}
	s.hmu.Unlock()
	if !found {
		return fmt.Errorf("%w: %s", ErrUnknownDelivery, deliveryID)
	}
	url := d.Data[deeplink.DataKeyURL]
	if url == "" {
		return ErrNoLink
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeDeepLinkOpen, Data: url})
	}
	return nil
}
