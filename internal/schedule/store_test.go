package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"prayerfirst/internal/storage"
	logx "prayerfirst/pkg/logx"
)

type failingKV struct {
	storage.Store
	getErr error
	putErr error
}

func (f *failingKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	return f.Store.Get(ctx, key)
}

func (f *failingKV) Put(ctx context.Context, key string, value []byte) error {
	if f.putErr != nil {
		return f.putErr
	}
	return f.Store.Put(ctx, key, value)
}

func newTestStore(kv storage.Store) *Store {
	n := 0
	return NewStore(kv, logx.Nop(),
		WithLocation(time.UTC),
		WithClock(func() time.Time { return at(7, 12, 0) }),
		WithIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) }),
	)
}

func TestStoreSaveAssignsIDAndRoundTrips(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	st := newTestStore(kv)
	st.Load(ctx)

	saved, err := st.Save(ctx, Schedule{
		Name:         "Dawn",
		Time:         Clock{Hour: 5, Minute: 45},
		DaysOfWeek:   []int{5, 1, 1, 3},
		Enabled:      true,
		AppTokens:    []string{"tok-a"},
		NotifyBefore: Minutes(10),
		IsCustom:     true,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.ID != "id-1" {
		t.Fatalf("ID = %q, want id-1", saved.ID)
	}
	if got := fmt.Sprint(saved.DaysOfWeek); got != "[1 3 5]" {
		t.Fatalf("DaysOfWeek = %s, want [1 3 5]", got)
	}

	reloaded := NewStore(kv, logx.Nop())
	items := reloaded.Load(ctx)
	if len(items) != 1 {
		t.Fatalf("reloaded %d schedules, want 1", len(items))
	}
	got := items[0]
	if got.Time != (Clock{Hour: 5, Minute: 45}) {
		t.Fatalf("Time = %s, want 05:45", got.Time)
	}
	if got.ID != "id-1" || got.Name != "Dawn" || !got.Enabled || !got.IsCustom {
		t.Fatalf("unexpected reload: %+v", got)
	}
	if got.NotifyBefore == nil || *got.NotifyBefore != 10 {
		t.Fatalf("NotifyBefore = %v, want 10", got.NotifyBefore)
	}
}

func TestStorePersistsTimeAsTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	st := newTestStore(kv)
	if _, err := st.Save(ctx, Schedule{Name: "Noon", Time: Clock{Hour: 12, Minute: 5}, DaysOfWeek: []int{1}}); err != nil {
		t.Fatal(err)
	}
	b, _, _ := kv.Get(ctx, StorageKey)
	var raw []map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatal(err)
	}
	ts, _ := raw[0]["time"].(string)
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		t.Fatalf("time %q is not ISO-8601: %v", ts, err)
	}
	if parsed.Hour() != 12 || parsed.Minute() != 5 {
		t.Fatalf("persisted time = %s", ts)
	}
}

func TestClockUnmarshal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want Clock
	}{
		{`"2024-03-05T07:45:00+05:30"`, Clock{Hour: 7, Minute: 45}},
		{`"1999-12-31T23:59:59.123Z"`, Clock{Hour: 23, Minute: 59}},
		{`"06:30"`, Clock{Hour: 6, Minute: 30}},
	}
	for _, tt := range tests {
		var c Clock
		if err := json.Unmarshal([]byte(tt.raw), &c); err != nil {
			t.Fatalf("Unmarshal(%s): %v", tt.raw, err)
		}
		if c != tt.want {
			t.Fatalf("Unmarshal(%s) = %s, want %s", tt.raw, c, tt.want)
		}
	}
	var c Clock
	if err := json.Unmarshal([]byte(`"25:00"`), &c); err == nil {
		t.Fatal("expected error for 25:00")
	}
}

func TestStoreToggleKeepsScheduleInAll(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(storage.NewMemory())
	a, _ := st.Save(ctx, Schedule{Name: "A", Time: Clock{Hour: 6}, DaysOfWeek: []int{1}, Enabled: true})
	b, _ := st.Save(ctx, Schedule{Name: "B", Time: Clock{Hour: 7}, DaysOfWeek: []int{2}, Enabled: true})

	ok, err := st.Toggle(ctx, a.ID, false)
	if err != nil || !ok {
		t.Fatalf("Toggle = %v, %v", ok, err)
	}
	enabled := st.Enabled()
	if len(enabled) != 1 || enabled[0].ID != b.ID {
		t.Fatalf("Enabled() = %+v, want only %s", enabled, b.ID)
	}
	if len(st.All()) != 2 {
		t.Fatalf("All() len = %d, want 2", len(st.All()))
	}
}

func TestStorePartialUpdatesIgnoreUnknownIDs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(storage.NewMemory())
	if ok, err := st.Toggle(ctx, "nope", true); ok || err != nil {
		t.Fatalf("Toggle(unknown) = %v, %v", ok, err)
	}
	if ok, err := st.UpdateAppTokens(ctx, "nope", []string{"x"}); ok || err != nil {
		t.Fatalf("UpdateAppTokens(unknown) = %v, %v", ok, err)
	}
	if ok, err := st.Delete(ctx, "nope"); ok || err != nil {
		t.Fatalf("Delete(unknown) = %v, %v", ok, err)
	}
}

func TestStoreUpdateKeepsIDAndCreatedAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(storage.NewMemory())
	first, _ := st.Save(ctx, Schedule{Name: "A", Time: Clock{Hour: 6}, DaysOfWeek: []int{1}})
	first.Name = "A renamed"
	first.CreatedAt = time.Time{}
	second, err := st.Save(ctx, first)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID || second.CreatedAt.IsZero() {
		t.Fatalf("update lost identity: %+v", second)
	}
	if len(st.All()) != 1 || st.All()[0].Name != "A renamed" {
		t.Fatalf("All() = %+v", st.All())
	}

	ok, err := st.UpdateAppTokens(ctx, first.ID, []string{"t1", "t2"})
	if !ok || err != nil {
		t.Fatalf("UpdateAppTokens = %v, %v", ok, err)
	}
	got, _ := st.Get(first.ID)
	if strings.Join(got.AppTokens, ",") != "t1,t2" {
		t.Fatalf("AppTokens = %v", got.AppTokens)
	}
}

func TestStoreRejectsInvalidSchedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(storage.NewMemory())
	bad := []Schedule{
		{Name: "", Time: Clock{Hour: 6}},
		{Name: "x", Time: Clock{Hour: 24}},
		{Name: "x", Time: Clock{Hour: 6}, DaysOfWeek: []int{7}},
		{Name: "x", Time: Clock{Hour: 6}, NotifyBefore: Minutes(-1)},
	}
	for _, sc := range bad {
		if _, err := st.Save(ctx, sc); !errors.Is(err, ErrInvalid) {
			t.Fatalf("Save(%+v) err = %v, want ErrInvalid", sc, err)
		}
	}
	if len(st.All()) != 0 {
		t.Fatal("invalid schedules must not be stored")
	}
}

func TestStoreLoadFailureDegradesToEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := &failingKV{Store: storage.NewMemory(), getErr: errors.New("disk gone")}
	st := newTestStore(kv)
	if got := st.Load(ctx); len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}
	if got := st.All(); len(got) != 0 {
		t.Fatalf("All = %v, want empty", got)
	}
}

func TestStoreLoadCorruptValueDegradesToEmpty(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	_ = kv.Put(ctx, StorageKey, []byte(`{"not":"an array"}`))
	if got := newTestStore(kv).Load(ctx); len(got) != 0 {
		t.Fatalf("Load = %v, want empty", got)
	}
}

func TestStoreReadsTimestampsInItsLocation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	jakarta := time.FixedZone("WIB", 7*3600)
	kv := storage.NewMemory()
	raw := `[
		{"id":"utc","name":"Fajr","time":"2024-06-01T22:30:00.000Z","daysOfWeek":[1],"enabled":true},
		{"id":"bare","name":"Dhuhr","time":"12:10","daysOfWeek":[1],"enabled":true},
		{"id":"broken","name":"Asr","time":"noon","daysOfWeek":[1],"enabled":true}
	]`
	_ = kv.Put(ctx, StorageKey, []byte(raw))

	st := NewStore(kv, logx.Nop(), WithLocation(jakarta))
	got := st.Load(ctx)
	if len(got) != 2 {
		t.Fatalf("Load = %v, want the two readable schedules", got)
	}
	if got[0].Time != (Clock{Hour: 5, Minute: 30}) {
		t.Fatalf("utc stamp read as %s, want 05:30 local", got[0].Time)
	}
	if got[1].Time != (Clock{Hour: 12, Minute: 10}) {
		t.Fatalf("bare clock read as %s", got[1].Time)
	}

	// Rewritten stamps carry the store's offset and read back unchanged.
	if err := st.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Save(ctx, Schedule{Name: "Isha", Time: Clock{Hour: 19, Minute: 45}, DaysOfWeek: []int{3}}); err != nil {
		t.Fatal(err)
	}
	b, _, _ := kv.Get(ctx, StorageKey)
	if !strings.Contains(string(b), "T19:45:00+07:00") {
		t.Fatalf("persisted %s, want a +07:00 stamp", b)
	}
	again := NewStore(kv, logx.Nop(), WithLocation(jakarta)).Load(ctx)
	if len(again) != 1 || again[0].Time != (Clock{Hour: 19, Minute: 45}) {
		t.Fatalf("reload = %v", again)
	}
}

func TestParseStamp(t *testing.T) {
	t.Parallel()
	jakarta := time.FixedZone("WIB", 7*3600)
	tests := []struct {
		name string
		raw  string
		loc  *time.Location
		want Clock
	}{
		{"own offset without location", "2024-01-01T23:00:00Z", nil, Clock{Hour: 23}},
		{"converted into location", "2024-01-01T23:00:00Z", jakarta, Clock{Hour: 6}},
		{"offset stamp into utc", "2024-03-05T07:45:00+05:30", time.UTC, Clock{Hour: 2, Minute: 15}},
		{"bare clock ignores location", "06:30", jakarta, Clock{Hour: 6, Minute: 30}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStamp(tt.raw, tt.loc)
			if err != nil {
				t.Fatalf("ParseStamp(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Fatalf("ParseStamp(%q) = %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestStoreWriteFailureIsReturned(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := &failingKV{Store: storage.NewMemory(), putErr: errors.New("read-only")}
	st := newTestStore(kv)
	if _, err := st.Save(ctx, Schedule{Name: "A", Time: Clock{Hour: 6}, DaysOfWeek: []int{1}}); err == nil {
		t.Fatal("expected persist error")
	}
	if len(st.All()) != 1 {
		t.Fatal("in-memory state should keep the mutation")
	}
}

func TestStoreClearAllAndSeedPresets(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := storage.NewMemory()
	st := newTestStore(kv)

	seeded, err := st.SeedPresets(ctx)
	if err != nil || !seeded {
		t.Fatalf("SeedPresets = %v, %v", seeded, err)
	}
	if len(st.All()) != len(Presets()) {
		t.Fatalf("All() len = %d, want %d", len(st.All()), len(Presets()))
	}
	if len(st.Enabled()) != 0 {
		t.Fatal("presets must start disabled")
	}
	if again, _ := st.SeedPresets(ctx); again {
		t.Fatal("SeedPresets must not overwrite an existing collection")
	}

	if err := st.ClearAll(ctx); err != nil {
		t.Fatal(err)
	}
	if got := NewStore(kv, logx.Nop()).Load(ctx); len(got) != 0 {
		t.Fatalf("after ClearAll reload = %v", got)
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st := newTestStore(storage.NewMemory())
	saved, _ := st.Save(ctx, Schedule{Name: "A", Time: Clock{Hour: 6}, DaysOfWeek: []int{1}, AppTokens: []string{"t"}})
	all := st.All()
	all[0].AppTokens[0] = "mutated"
	got, _ := st.Get(saved.ID)
	if got.AppTokens[0] != "t" {
		t.Fatal("All() leaked internal slice")
	}
}
