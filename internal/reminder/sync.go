package reminder

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"prayerfirst/internal/deeplink"
	"prayerfirst/internal/schedule"
	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

// Content builds the title and body of a reminder.
type Content func(s schedule.Schedule) (title, body string)

// DefaultContent names the prayer and mentions the lead time when one is set.
func DefaultContent(s schedule.Schedule) (string, string) {
	if lead := s.LeadTime(); lead > 0 {
		return s.Name, fmt.Sprintf("Your prayer time starts in %d minutes.", int(lead/time.Minute))
	}
	return s.Name, "It's time to pray. Your apps unlock once you finish."
}

// Syncer keeps the scheduler's registrations equal to the enabled schedules.
//
// The persisted id list always names exactly what is registered: stored ids
// are cancelled and the list of survivors (normally empty) is written before
// anything new is registered, so an interrupted Sync leaves no reminders
// rather than duplicates. An id whose cancel failed stays in the list so the
// next Sync retries it.
type Syncer struct {
	sched   Scheduler
	kv      storage.Store
	log     logx.Logger
	content Content
}

func NewSyncer(sched Scheduler, kv storage.Store, log logx.Logger) *Syncer {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Syncer{sched: sched, kv: kv, log: log, content: DefaultContent}
}

// SetContent replaces the reminder text builder.
func (s *Syncer) SetContent(fn Content) {
	if fn != nil {
		s.content = fn
	}
}

// Sync replaces every registered reminder with one per (schedule, weekday)
// of the enabled schedules. Missing notification permission is not an error.
func (s *Syncer) Sync(ctx context.Context, schedules []schedule.Schedule) (Result, error) {
	var res Result

	kept, n, err := s.clear(ctx)
	res.Cancelled = n
	res.Retained = len(kept)
	if err != nil {
		return res, err
	}

	granted, err := s.sched.Permission(ctx)
	if err != nil {
		s.log.Warn("notification permission check failed; skipping reminders", logx.Err(err))
		granted = false
	}
	if !granted {
		res.PermissionDenied = true
		s.log.Debug("notification permission not granted; no reminders registered")
		return res, nil
	}

	active := make([]schedule.Schedule, 0, len(schedules))
	for _, sc := range schedules {
		if sc.Enabled && len(sc.DaysOfWeek) > 0 {
			active = append(active, sc)
		}
	}
	if len(active) == 0 {
		return res, nil
	}

	ids := make([]string, 0, len(kept)+len(active)*7)
	ids = append(ids, kept...)
	for _, sc := range active {
		title, body := s.content(sc)
		for _, wd := range sc.Weekdays() {
			if err := ctx.Err(); err != nil {
				// Keep what is already registered referenced so nothing is orphaned.
				if perr := s.saveIDs(context.WithoutCancel(ctx), ids); perr != nil {
					s.log.Error("reminder ids lost on interrupted sync",
						logx.Strings("ids", ids), logx.Err(perr))
				}
				res.Registered = ids[len(kept):]
				return res, err
			}
			req := Request{
				ScheduleID: sc.ID,
				Title:      title,
				Body:       body,
				Trigger:    TriggerFor(sc.Time, wd, sc.LeadTime()),
				Data:       map[string]string{deeplink.DataKeyURL: deeplink.PrayerURL},
			}
			id, err := s.sched.ScheduleWeekly(ctx, req)
			if err != nil {
				res.Failed++
				s.log.Warn("reminder register failed",
					logx.String("schedule", sc.ID), logx.Weekday("weekday", wd),
					logx.String("trigger", req.Trigger.String()), logx.Err(err))
				continue
			}
			ids = append(ids, id)
		}
	}

	res.Registered = ids[len(kept):]
	if err := s.saveIDs(ctx, ids); err != nil {
		return res, err
	}
	s.log.Info("reminders synced",
		logx.Int("schedules", len(active)), logx.Int("registered", len(ids)),
		logx.Int("cancelled", res.Cancelled), logx.Int("retained", res.Retained), logx.Int("failed", res.Failed))
	return res, nil
}

// Clear cancels every stored registration. Ids that could not be cancelled
// stay stored and are reported in the error.
func (s *Syncer) Clear(ctx context.Context) error {
	kept, _, err := s.clear(ctx)
	if err != nil {
		return err
	}
	if len(kept) > 0 {
		return fmt.Errorf("%d reminders could not be cancelled", len(kept))
	}
	return nil
}

// StoredIDs returns the persisted registration ids.
func (s *Syncer) StoredIDs(ctx context.Context) []string {
	return s.loadIDs(ctx)
}

// clear cancels the stored ids and persists the ones still registered.
func (s *Syncer) clear(ctx context.Context) (kept []string, cancelled int, err error) {
	kept = []string{}
	for _, id := range s.loadIDs(ctx) {
		if err := s.sched.Cancel(ctx, id); err != nil {
			s.log.Warn("reminder cancel failed; keeping id", logx.String("id", id), logx.Err(err))
			kept = append(kept, id)
			continue
		}
		cancelled++
	}
	if err := s.saveIDs(ctx, kept); err != nil {
		// Unknown registration state: registering more would risk duplicates.
		return kept, cancelled, err
	}
	return kept, cancelled, nil
}

func (s *Syncer) loadIDs(ctx context.Context) []string {
	if s.kv == nil {
		return nil
	}
	b, ok, err := s.kv.Get(ctx, IDsKey)
	if err != nil {
		s.log.Warn("reminder ids load failed", logx.Err(err))
		return nil
	}
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		s.log.Warn("reminder ids decode failed", logx.Err(err))
		return nil
	}
	return ids
}

func (s *Syncer) saveIDs(ctx context.Context, ids []string) error {
	if s.kv == nil {
		return storage.ErrDisabled
	}
	if ids == nil {
		ids = []string{}
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, IDsKey, b); err != nil {
		s.log.Error("reminder ids persist failed", logx.Err(err), logx.Int("count", len(ids)))
		return fmt.Errorf("persist reminder ids: %w", err)
	}
	return nil
}
