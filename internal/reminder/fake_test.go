package reminder

import (
	"context"
	"fmt"
	"sync"
)

type fakeScheduler struct {
	mu         sync.Mutex
	granted    bool
	permErr    error
	seq        int
	active     map[string]Request
	cancelled  []string
	failEvery  int // fail every Nth registration when > 0
	failCancel map[string]bool
	onSchedule func(n int)
}

func newFakeScheduler(granted bool) *fakeScheduler {
	return &fakeScheduler{granted: granted, active: map[string]Request{}}
}

func (f *fakeScheduler) Permission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted, f.permErr
}

func (f *fakeScheduler) RequestPermission(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.granted, f.permErr
}

func (f *fakeScheduler) ScheduleWeekly(ctx context.Context, req Request) (string, error) {
	f.mu.Lock()
	f.seq++
	n := f.seq
	hook := f.onSchedule
	fail := f.failEvery > 0 && n%f.failEvery == 0
	f.mu.Unlock()
	if hook != nil {
		hook(n)
	}
	if fail {
		return "", fmt.Errorf("scheduler rejected #%d", n)
	}
	id := fmt.Sprintf("n-%d", n)
	f.mu.Lock()
	f.active[id] = req
	f.mu.Unlock()
	return id, nil
}

func (f *fakeScheduler) Cancel(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCancel[id] {
		return fmt.Errorf("cancel %s: scheduler busy", id)
	}
	delete(f.active, id)
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeScheduler) activeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.active)
}
