package reminder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"prayerfirst/internal/deeplink"
	"prayerfirst/internal/schedule"
	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

func storedIDs(t *testing.T, kv storage.Store) []string {
	t.Helper()
	b, ok, err := kv.Get(context.Background(), IDsKey)
	if err != nil {
		t.Fatalf("Get ids: %v", err)
	}
	if !ok {
		return nil
	}
	var ids []string
	if err := json.Unmarshal(b, &ids); err != nil {
		t.Fatalf("decode ids: %v", err)
	}
	return ids
}

func testSchedules() []schedule.Schedule {
	return []schedule.Schedule{
		{ID: "a", Name: "Morning", Time: schedule.Clock{Hour: 6}, DaysOfWeek: []int{1, 3, 5}, Enabled: true, NotifyBefore: schedule.Minutes(15)},
		{ID: "b", Name: "Night", Time: schedule.Clock{Hour: 21}, DaysOfWeek: []int{0}, Enabled: true},
		{ID: "c", Name: "Off", Time: schedule.Clock{Hour: 12}, DaysOfWeek: []int{2}, Enabled: false},
		{ID: "d", Name: "No days", Time: schedule.Clock{Hour: 13}, Enabled: true},
	}
}

func TestSyncRegistersOnePerScheduleWeekday(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())

	res, err := s.Sync(ctx, testSchedules())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if len(res.Registered) != 4 {
		t.Fatalf("registered %d, want 4", len(res.Registered))
	}
	if got := storedIDs(t, kv); len(got) != 4 {
		t.Fatalf("stored ids = %v", got)
	}
	for _, req := range fs.active {
		if req.ScheduleID == "c" || req.ScheduleID == "d" {
			t.Fatalf("schedule %s must not be registered", req.ScheduleID)
		}
		if req.Data[deeplink.DataKeyURL] != deeplink.PrayerURL {
			t.Fatalf("payload = %v", req.Data)
		}
		if req.ScheduleID == "a" && (req.Trigger.Hour != 5 || req.Trigger.Minute != 45) {
			t.Fatalf("lead time not applied: %s", req.Trigger)
		}
	}
}

func TestSyncReplacesPreviousRegistrations(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())

	first, _ := s.Sync(ctx, testSchedules())
	res, err := s.Sync(ctx, testSchedules()[:1])
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled != len(first.Registered) {
		t.Fatalf("cancelled %d, want %d", res.Cancelled, len(first.Registered))
	}
	if fs.activeCount() != 3 {
		t.Fatalf("active registrations = %d, want 3", fs.activeCount())
	}
	if got := storedIDs(t, kv); len(got) != 3 {
		t.Fatalf("stored ids = %v", got)
	}
}

func TestSyncWithoutPermissionLeavesNothing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())
	if _, err := s.Sync(ctx, testSchedules()); err != nil {
		t.Fatal(err)
	}

	fs.mu.Lock()
	fs.granted = false
	fs.mu.Unlock()

	res, err := s.Sync(ctx, testSchedules())
	if err != nil {
		t.Fatalf("Sync without permission must not fail: %v", err)
	}
	if !res.PermissionDenied {
		t.Fatal("PermissionDenied not reported")
	}
	if fs.activeCount() != 0 {
		t.Fatalf("active registrations = %d, want 0", fs.activeCount())
	}
	if got := storedIDs(t, kv); len(got) != 0 {
		t.Fatalf("stored ids = %v, want empty", got)
	}
}

func TestSyncPermissionErrorIsSilent(t *testing.T) {
	t.Parallel()
	fs := newFakeScheduler(true)
	fs.permErr = errors.New("bridge not ready")
	res, err := NewSyncer(fs, storage.NewMemory(), logx.Nop()).Sync(context.Background(), testSchedules())
	if err != nil || !res.PermissionDenied {
		t.Fatalf("Sync = %+v, %v", res, err)
	}
}

func TestSyncDisabledScheduleDropsItsReminders(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, storage.NewMemory(), logx.Nop())
	schedules := testSchedules()[:2]
	_, _ = s.Sync(ctx, schedules)

	schedules[0].Enabled = false
	if _, err := s.Sync(ctx, schedules); err != nil {
		t.Fatal(err)
	}
	for _, req := range fs.active {
		if req.ScheduleID == "a" {
			t.Fatal("disabled schedule still has reminders")
		}
	}
	if fs.activeCount() != 1 {
		t.Fatalf("active = %d, want 1", fs.activeCount())
	}
}

func TestSyncEmptiesStoredIDsBeforeRegistering(t *testing.T) {
	t.Parallel()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())
	if _, err := s.Sync(context.Background(), testSchedules()); err != nil {
		t.Fatal(err)
	}

	// Interrupt the second sync at its first registration.
	ctx, cancel := context.WithCancel(context.Background())
	var idsAtFirstRegister []string
	fs.mu.Lock()
	fs.onSchedule = func(n int) {
		if idsAtFirstRegister == nil {
			idsAtFirstRegister = storedIDs(t, kv)
			if idsAtFirstRegister == nil {
				idsAtFirstRegister = []string{}
			}
			cancel()
		}
	}
	fs.mu.Unlock()

	res, err := s.Sync(ctx, testSchedules())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync err = %v, want context.Canceled", err)
	}
	if len(idsAtFirstRegister) != 0 {
		t.Fatalf("stored ids at first registration = %v, want empty", idsAtFirstRegister)
	}
	// Whatever got registered before the interruption is still referenced.
	stored := storedIDs(t, kv)
	if len(stored) != len(res.Registered) || len(stored) != fs.activeCount() {
		t.Fatalf("stored=%v registered=%v active=%d", stored, res.Registered, fs.activeCount())
	}
}

func TestSyncInterruptedPersistFailureIsLogged(t *testing.T) {
	t.Parallel()
	kv := &flakyKV{Store: storage.NewMemory()}
	fs := newFakeScheduler(true)
	var logs bytes.Buffer
	s := NewSyncer(fs, kv, logx.NewWriter(&logs, "debug"))

	ctx, cancel := context.WithCancel(context.Background())
	fs.onSchedule = func(n int) {
		if n == 2 {
			kv.setFail()
			cancel()
		}
	}
	if _, err := s.Sync(ctx, testSchedules()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Sync err = %v, want context.Canceled", err)
	}
	if !strings.Contains(logs.String(), "reminder ids lost on interrupted sync") {
		t.Fatalf("persist failure not logged:\n%s", logs.String())
	}
}

func TestSyncPersistFailureAbortsBeforeRegistering(t *testing.T) {
	t.Parallel()
	fs := newFakeScheduler(true)
	kv := &readOnlyKV{Store: storage.NewMemory()}
	_, err := NewSyncer(fs, kv, logx.Nop()).Sync(context.Background(), testSchedules())
	if err == nil {
		t.Fatal("expected persist error")
	}
	if fs.activeCount() != 0 {
		t.Fatal("nothing may be registered when the id list cannot be written")
	}
}

func TestSyncKeepsGoingAfterRegistrationFailure(t *testing.T) {
	t.Parallel()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	fs.failEvery = 2
	res, err := NewSyncer(fs, kv, logx.Nop()).Sync(context.Background(), testSchedules())
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 2 || len(res.Registered) != 2 {
		t.Fatalf("res = %+v", res)
	}
	if got := storedIDs(t, kv); len(got) != 2 {
		t.Fatalf("stored = %v", got)
	}
}

func TestSyncKeepsIDsWhoseCancelFailed(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())
	monday := []schedule.Schedule{{ID: "m", Name: "Monday", Time: schedule.Clock{Hour: 6}, DaysOfWeek: []int{1}, Enabled: true}}

	if _, err := s.Sync(ctx, monday); err != nil {
		t.Fatal(err)
	}
	fs.mu.Lock()
	fs.failCancel = map[string]bool{"n-1": true}
	fs.mu.Unlock()

	res, err := s.Sync(ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if res.Retained != 1 || res.Cancelled != 0 || len(res.Registered) != 1 {
		t.Fatalf("res = %+v", res)
	}
	stored := storedIDs(t, kv)
	if len(stored) != fs.activeCount() || len(stored) != 2 || stored[0] != "n-1" {
		t.Fatalf("stored=%v active=%d", stored, fs.activeCount())
	}

	// Once the scheduler recovers the leftover is cancelled too.
	fs.mu.Lock()
	fs.failCancel = nil
	fs.mu.Unlock()
	res, err = s.Sync(ctx, monday)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cancelled != 2 || res.Retained != 0 || fs.activeCount() != 1 {
		t.Fatalf("res=%+v active=%d", res, fs.activeCount())
	}
	if got := storedIDs(t, kv); len(got) != 1 {
		t.Fatalf("stored = %v", got)
	}
}

func TestClearReportsUncancelledIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(false)
	s := NewSyncer(fs, kv, logx.Nop())
	ids, _ := json.Marshal([]string{"x-1", "x-2"})
	if err := kv.Put(ctx, IDsKey, ids); err != nil {
		t.Fatal(err)
	}
	fs.failCancel = map[string]bool{"x-2": true}

	if err := s.Clear(ctx); err == nil {
		t.Fatal("expected error for the id that stayed registered")
	}
	if got := s.StoredIDs(ctx); len(got) != 1 || got[0] != "x-2" {
		t.Fatalf("stored = %v", got)
	}
	// A denied permission still leaves the survivor referenced.
	if _, err := s.Sync(ctx, testSchedules()); err != nil {
		t.Fatal(err)
	}
	if got := storedIDs(t, kv); len(got) != 1 || got[0] != "x-2" {
		t.Fatalf("stored after denied sync = %v", got)
	}
}

func TestClearCancelsEverything(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	fs := newFakeScheduler(true)
	s := NewSyncer(fs, kv, logx.Nop())
	_, _ = s.Sync(ctx, testSchedules())
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if fs.activeCount() != 0 || len(s.StoredIDs(ctx)) != 0 {
		t.Fatalf("active=%d stored=%v", fs.activeCount(), s.StoredIDs(ctx))
	}
}

func TestDefaultContent(t *testing.T) {
	t.Parallel()
	title, body := DefaultContent(schedule.Schedule{Name: "Dawn", NotifyBefore: schedule.Minutes(10)})
	if title != "Dawn" || body != "Your prayer time starts in 10 minutes." {
		t.Fatalf("content = %q / %q", title, body)
	}
	_, body = DefaultContent(schedule.Schedule{Name: "Dawn"})
	if body == "" {
		t.Fatal("empty body")
	}
}

type readOnlyKV struct{ storage.Store }

// flakyKV fails Put once fail is set.
type flakyKV struct {
	storage.Store
	mu   sync.Mutex
	fail bool
}

func (f *flakyKV) setFail() {
	f.mu.Lock()
	f.fail = true
	f.mu.Unlock()
}

func (f *flakyKV) Put(ctx context.Context, key string, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.Store.Put(ctx, key, value)
}

func (readOnlyKV) Put(context.Context, string, []byte) error { return errors.New("read-only") }
