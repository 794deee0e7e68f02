package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

// Storage keys of the simulated capability.
const (
	StatusKey = "lock_status"
	AuthKey   = "lock_authorization"
)

type authState struct {
	Authorized bool      `json:"authorized"`
	At         time.Time `json:"at"`
}

// Picker stands in for the platform app-selection UI.
type Picker interface {
	Pick(ctx context.Context, scheduleID string) ([]string, error)
}

// StaticPicker always picks the same tokens. An empty picker behaves like a
// user who closes the sheet without choosing.
type StaticPicker []string

func (p StaticPicker) Pick(ctx context.Context, scheduleID string) ([]string, error) {
	if len(p) == 0 {
		return nil, &Error{Op: "present picker", Code: CodeCancelled, Message: "user cancelled the selection"}
	}
	return slices.Clone([]string(p)), nil
}

type simWindow struct {
	w       Window
	entries []cron.EntryID
}

// Simulated is an in-process capability for platforms without a native
// bridge (desktop, CI). Windows fire through robfig/cron in loc. The shield
// state and the authorization survive restarts via StatusKey and AuthKey.
type Simulated struct {
	kv     storage.Store
	log    logx.Logger
	picker Picker
	now    func() time.Time

	cron *cron.Cron

	mu         sync.Mutex
	authorized bool
	selection  map[string][]string
	windows    map[string]*simWindow
	status     Status
	onChange   func(Status)
}

type SimulatedOption func(*Simulated)

func WithPicker(p Picker) SimulatedOption { return func(s *Simulated) { s.picker = p } }

func WithNow(now func() time.Time) SimulatedOption { return func(s *Simulated) { s.now = now } }

// WithStatusHook is called (outside the lock) when a window applies or lifts
// the shield on its own. Changes made through the Capability methods are not
// reported; their caller already knows.
func WithStatusHook(fn func(Status)) SimulatedOption {
	return func(s *Simulated) { s.onChange = fn }
}

func NewSimulated(ctx context.Context, kv storage.Store, loc *time.Location, log logx.Logger, opts ...SimulatedOption) *Simulated {
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}
	s := &Simulated{
		kv:        kv,
		log:       log,
		picker:    StaticPicker(nil),
		now:       time.Now,
		cron:      cron.New(cron.WithLocation(loc)),
		selection: map[string][]string{},
		windows:   map[string]*simWindow{},
	}
	for _, o := range opts {
		o(s)
	}
	s.status = s.loadStatus(ctx)
	s.authorized = s.loadAuthorized(ctx)
	return s
}

// Start begins firing windows. Stop halts them.
func (s *Simulated) Start() { s.cron.Start() }

func (s *Simulated) Stop(ctx context.Context) {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (s *Simulated) Platform() string { return "simulated" }

func (s *Simulated) RequestAuthorization(ctx context.Context) (bool, error) {
	s.mu.Lock()
	s.authorized = true
	s.mu.Unlock()
	s.put(ctx, AuthKey, authState{Authorized: true, At: s.now()})
	return true, nil
}

func (s *Simulated) requireAuthorized(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.authorized {
		return &Error{Op: op, Code: CodeAuthorizationDenied, Message: "screen time authorization not granted"}
	}
	return nil
}

func (s *Simulated) PresentPicker(ctx context.Context, scheduleID string) (Selection, error) {
	if err := s.requireAuthorized("present picker"); err != nil {
		return Selection{}, err
	}
	tokens, err := s.picker.Pick(ctx, scheduleID)
	if err != nil {
		return Selection{}, err
	}
	s.mu.Lock()
	s.selection[scheduleID] = slices.Clone(tokens)
	s.mu.Unlock()
	return Selection{Count: len(tokens), Tokens: tokens}, nil
}

func (s *Simulated) StartSchedule(ctx context.Context, w Window) error {
	if err := s.requireAuthorized("start schedule"); err != nil {
		return err
	}
	startSpec := cronSpec(w.StartHour, w.StartMinute, w.Days)
	endSpec := cronSpec(w.EndHour, w.EndMinute, w.EndDays())
	id := w.ID
	if len(w.Tokens) > 0 {
		s.SetSelection(id, w.Tokens)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWindowLocked(id)

	startID, err := s.cron.AddFunc(startSpec, func() { s.openWindow(context.Background(), id) })
	if err != nil {
		return &Error{Op: "start schedule", Code: CodeFailed, Message: "invalid window " + startSpec, Err: err}
	}
	endID, err := s.cron.AddFunc(endSpec, func() { s.closeWindow(context.Background(), id) })
	if err != nil {
		s.cron.Remove(startID)
		return &Error{Op: "start schedule", Code: CodeFailed, Message: "invalid window " + endSpec, Err: err}
	}
	s.windows[id] = &simWindow{w: w, entries: []cron.EntryID{startID, endID}}
	s.log.Debug("lock window started", logx.String("window", w.String()), logx.String("start", startSpec), logx.String("end", endSpec))
	return nil
}

func (s *Simulated) removeWindowLocked(id string) bool {
	sw, ok := s.windows[id]
	if !ok {
		return false
	}
	for _, e := range sw.entries {
		s.cron.Remove(e)
	}
	delete(s.windows, id)
	return true
}

func (s *Simulated) StopSchedule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeWindowLocked(id)
	return nil
}

func (s *Simulated) StopAllSchedules(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range slices.Collect(maps.Keys(s.windows)) {
		s.removeWindowLocked(id)
	}
	return nil
}

func (s *Simulated) ActiveSchedules(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := slices.Collect(maps.Keys(s.windows))
	sort.Strings(ids)
	return ids, nil
}

func (s *Simulated) ApplyShield(ctx context.Context, scheduleID string) error {
	if err := s.requireAuthorized("apply shield"); err != nil {
		return err
	}
	s.mu.Lock()
	tokens := s.selection[scheduleID]
	if len(tokens) == 0 {
		tokens = s.selection[""]
	}
	if len(tokens) == 0 {
		s.mu.Unlock()
		return &Error{Op: "apply shield", Code: CodeFailed, Message: "no apps selected"}
	}
	at := s.now()
	st := Status{Locked: true, LockedAt: &at, ScheduleID: scheduleID}
	s.status = st
	s.mu.Unlock()

	s.log.Info("shield applied", logx.String("schedule", scheduleID), logx.Int("apps", len(tokens)))
	return s.commit(ctx, st)
}

func (s *Simulated) RemoveShield(ctx context.Context) error {
	s.mu.Lock()
	wasLocked := s.status.Locked
	s.status = Status{}
	s.mu.Unlock()
	if wasLocked {
		s.log.Info("shield removed")
	}
	return s.commit(ctx, Status{})
}

// openWindow runs when window id starts.
func (s *Simulated) openWindow(ctx context.Context, id string) {
	if err := s.ApplyShield(ctx, id); err != nil {
		s.log.Warn("window start failed", logx.String("window", id), logx.Err(err))
		return
	}
	s.changed()
}

// closeWindow lifts the shield only if window id put it there.
func (s *Simulated) closeWindow(ctx context.Context, id string) {
	s.mu.Lock()
	mine := s.status.Locked && s.status.ScheduleID == id
	s.mu.Unlock()
	if !mine {
		return
	}
	if err := s.RemoveShield(ctx); err != nil {
		s.log.Warn("window end failed", logx.String("window", id), logx.Err(err))
		return
	}
	s.changed()
}

func (s *Simulated) changed() {
	if s.onChange == nil {
		return
	}
	st, _ := s.Status(context.Background())
	s.onChange(st)
}

func (s *Simulated) Status(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	if st.LockedAt != nil {
		at := *st.LockedAt
		st.LockedAt = &at
	}
	return st, nil
}

// SetSelection records the apps shielded for scheduleID, as a restored
// platform selection would. Empty tokens forget it.
func (s *Simulated) SetSelection(scheduleID string, tokens []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(tokens) == 0 {
		delete(s.selection, scheduleID)
		return
	}
	s.selection[scheduleID] = slices.Clone(tokens)
}

// commit persists st. The shield itself has already changed, so a storage
// failure is only logged.
func (s *Simulated) commit(ctx context.Context, st Status) error {
	s.put(ctx, StatusKey, st)
	return nil
}

func (s *Simulated) put(ctx context.Context, key string, v any) {
	if s.kv == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Warn("lock state encode failed", logx.String("key", key), logx.Err(err))
		return
	}
	if err := s.kv.Put(ctx, key, b); err != nil {
		s.log.Warn("lock state persist failed", logx.String("key", key), logx.Err(err))
	}
}

func (s *Simulated) loadAuthorized(ctx context.Context) bool {
	if s.kv == nil {
		return false
	}
	b, ok, err := s.kv.Get(ctx, AuthKey)
	if err != nil {
		s.log.Warn("lock authorization load failed", logx.Err(err))
		return false
	}
	if !ok {
		return false
	}
	var a authState
	if err := json.Unmarshal(b, &a); err != nil {
		s.log.Warn("lock authorization decode failed", logx.Err(err))
		return false
	}
	return a.Authorized
}

func (s *Simulated) loadStatus(ctx context.Context) Status {
	if s.kv == nil {
		return Status{}
	}
	b, ok, err := s.kv.Get(ctx, StatusKey)
	if err != nil || !ok {
		if err != nil {
			s.log.Warn("lock status load failed", logx.Err(err))
		}
		return Status{}
	}
	var st Status
	if err := json.Unmarshal(b, &st); err != nil {
		s.log.Warn("lock status decode failed", logx.Err(err))
		return Status{}
	}
	return st
}

// cronSpec renders "M H * * D1,D2" (standard 5-field cron, Sunday=0).
func cronSpec(hour, minute int, days []int) string {
	ds := make([]string, 0, len(days))
	seen := map[int]bool{}
	for _, d := range days {
		if seen[d] {
			continue
		}
		seen[d] = true
		ds = append(ds, strconv.Itoa(d))
	}
	return fmt.Sprintf("%d %d * * %s", minute, hour, strings.Join(ds, ","))
}
