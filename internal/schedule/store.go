package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

// StorageKey is the key the collection is persisted under.
const StorageKey = "prayer_schedules"

// Store is the schedule collection with its own lifecycle. Construct one per
// process and share the pointer.
//
// Every mutation rewrites the whole collection (last write wins). A failed
// write is logged and returned, the in-memory state keeps the mutation.
type Store struct {
	kv  storage.Store
	log logx.Logger

	now   func() time.Time
	newID func() string
	loc   *time.Location

	mu     sync.RWMutex
	loaded bool
	items  []Schedule
}

type StoreOption func(*Store)

// WithClock overrides time.Now for CreatedAt/UpdatedAt stamps.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithLocation sets the zone persisted times are written and read in.
// Defaults to time.Local.
func WithLocation(loc *time.Location) StoreOption {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithIDGenerator overrides uuid-based id generation.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *Store) { s.newID = fn }
}

func NewStore(kv storage.Store, log logx.Logger, opts ...StoreOption) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Store{
		kv:    kv,
		log:   log,
		now:   time.Now,
		newID: func() string { return uuid.NewString() },
		loc:   time.Local,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load reads the persisted collection into memory. Read or decode failures
// degrade to an empty collection.
func (s *Store) Load(ctx context.Context) []Schedule {
	items := s.read(ctx)
	s.mu.Lock()
	s.items = items
	s.loaded = true
	out := cloneAll(s.items)
	s.mu.Unlock()
	return out
}

func (s *Store) read(ctx context.Context) []Schedule {
	if s.kv == nil {
		return nil
	}
	b, ok, err := s.kv.Get(ctx, StorageKey)
	if err != nil {
		s.log.Warn("schedules load failed; continuing with none", logx.Err(err))
		return nil
	}
	if !ok || len(b) == 0 {
		return nil
	}
	var stored []storedSchedule
	if err := json.Unmarshal(b, &stored); err != nil {
		s.log.Warn("schedules decode failed; continuing with none", logx.Err(err))
		return nil
	}
	items := make([]Schedule, 0, len(stored))
	for _, w := range stored {
		c, err := ParseStamp(w.Time, s.loc)
		if err != nil {
			s.log.Warn("schedule time unreadable; dropped", logx.String("id", w.ID), logx.Err(err))
			continue
		}
		w.Schedule.Time = c
		items = append(items, w.Schedule)
	}
	return items
}

// storedSchedule is the persisted shape. Time shadows Schedule.Time so the
// clock is written and read in the store's location.
type storedSchedule struct {
	Schedule
	Time string `json:"time"`
}

func (s *Store) ensureLoadedLocked(ctx context.Context) {
	if s.loaded {
		return
	}
	s.items = s.read(ctx)
	s.loaded = true
}

func (s *Store) persistLocked(ctx context.Context) error {
	if s.kv == nil {
		return storage.ErrDisabled
	}
	items := make([]storedSchedule, 0, len(s.items))
	for _, sc := range s.items {
		items = append(items, storedSchedule{Schedule: sc, Time: sc.Time.Stamp(s.loc)})
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	if err := s.kv.Put(ctx, StorageKey, b); err != nil {
		s.log.Error("schedules persist failed", logx.Err(err), logx.Int("count", len(s.items)))
		return fmt.Errorf("persist schedules: %w", err)
	}
	return nil
}

// Save inserts or replaces the schedule with the same id. An empty id gets a
// fresh one. The stored copy is returned.
func (s *Store) Save(ctx context.Context, sc Schedule) (Schedule, error) {
	sc, err := normalize(sc)
	if err != nil {
		return Schedule{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	now := s.now()
	if sc.ID == "" {
		sc.ID = s.newID()
	}
	sc.UpdatedAt = now
	if i := s.indexLocked(sc.ID); i >= 0 {
		sc.CreatedAt = s.items[i].CreatedAt
		s.items[i] = sc
	} else {
		if sc.CreatedAt.IsZero() {
			sc.CreatedAt = now
		}
		s.items = append(s.items, sc)
	}
	s.log.Debug("schedule saved", logx.String("id", sc.ID), logx.String("name", sc.Name), logx.String("time", sc.Time.String()), logx.Bool("enabled", sc.Enabled))
	return sc.clone(), s.persistLocked(ctx)
}

// Delete removes the schedule with id. Unknown ids are a no-op.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	s.log.Debug("schedule deleted", logx.String("id", id))
	return true, s.persistLocked(ctx)
}

// UpdateAppTokens replaces the app tokens of schedule id.
// It reports false (and does nothing) when id is unknown.
func (s *Store) UpdateAppTokens(ctx context.Context, id string, tokens []string) (bool, error) {
	return s.update(ctx, id, func(sc *Schedule) { sc.AppTokens = slices.Clone(tokens) })
}

// Toggle sets the enabled flag of schedule id.
// It reports false (and does nothing) when id is unknown.
func (s *Store) Toggle(ctx context.Context, id string, enabled bool) (bool, error) {
	return s.update(ctx, id, func(sc *Schedule) { sc.Enabled = enabled })
}

func (s *Store) update(ctx context.Context, id string, fn func(*Schedule)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)

	i := s.indexLocked(id)
	if i < 0 {
		return false, nil
	}
	fn(&s.items[i])
	s.items[i].UpdatedAt = s.now()
	return true, s.persistLocked(ctx)
}

// ClearAll removes every schedule.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.loaded = true
	return s.persistLocked(ctx)
}

// SeedPresets stores Presets() when the collection is empty.
// It reports whether anything was written.
func (s *Store) SeedPresets(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLoadedLocked(ctx)
	if len(s.items) > 0 {
		return false, nil
	}
	now := s.now()
	for _, p := range Presets() {
		p.CreatedAt, p.UpdatedAt = now, now
		s.items = append(s.items, p)
	}
	return true, s.persistLocked(ctx)
}

// All returns a copy of every cached schedule, in insertion order.
func (s *Store) All() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.items)
}

// Enabled returns a copy of the enabled cached schedules.
func (s *Store) Enabled() []Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Schedule, 0, len(s.items))
	for _, sc := range s.items {
		if sc.Enabled {
			out = append(out, sc.clone())
		}
	}
	return out
}

// Get returns the cached schedule with id.
func (s *Store) Get(id string) (Schedule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.items[i].clone(), true
	}
	return Schedule{}, false
}

func (s *Store) indexLocked(id string) int {
	id = strings.TrimSpace(id)
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(sc Schedule) bool { return sc.ID == id })
}

func normalize(sc Schedule) (Schedule, error) {
	sc = sc.clone()
	sc.ID = strings.TrimSpace(sc.ID)
	sc.Name = strings.TrimSpace(sc.Name)
	if sc.Name == "" {
		return Schedule{}, fmt.Errorf("%w: name required", ErrInvalid)
	}
	if !sc.Time.Valid() {
		return Schedule{}, fmt.Errorf("%w: time %s out of range", ErrInvalid, sc.Time)
	}
	days := make([]int, 0, len(sc.DaysOfWeek))
	for _, d := range sc.DaysOfWeek {
		if d < 0 || d > 6 {
			return Schedule{}, fmt.Errorf("%w: day of week %d out of range [0,6]", ErrInvalid, d)
		}
		if !slices.Contains(days, d) {
			days = append(days, d)
		}
	}
	slices.Sort(days)
	sc.DaysOfWeek = days
	if sc.NotifyBefore != nil && (*sc.NotifyBefore < 0 || *sc.NotifyBefore >= MaxNotifyBefore) {
		return Schedule{}, fmt.Errorf("%w: notifyBefore %d out of range [0,%d)", ErrInvalid, *sc.NotifyBefore, MaxNotifyBefore)
	}
	return sc, nil
}

func cloneAll(items []Schedule) []Schedule {
	out := make([]Schedule, len(items))
	for i, sc := range items {
		out[i] = sc.clone()
	}
	return out
}
