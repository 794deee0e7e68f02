package lock

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// Selection is the outcome of the app picker.
type Selection struct {
	Count  int
	Tokens []string
}

// Window is a recurring native lock window. Days use 0=Sunday..6=Saturday.
// An end at or before the start ends on the following day. Tokens are the
// apps the window shields; empty keeps whatever the capability already has
// selected for ID.
type Window struct {
	ID          string
	StartHour   int
	StartMinute int
	EndHour     int
	EndMinute   int
	Days        []int
	Tokens      []string
}

func (w Window) validate(op string) error {
	if w.ID == "" {
		return invalid(op, "window id required")
	}
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return invalid(op, "hour out of range")
	}
	if w.StartMinute < 0 || w.StartMinute > 59 || w.EndMinute < 0 || w.EndMinute > 59 {
		return invalid(op, "minute out of range")
	}
	if len(w.Days) == 0 {
		return invalid(op, "at least one day required")
	}
	for _, d := range w.Days {
		if d < 0 || d > 6 {
			return invalid(op, "day %d out of range [0,6]", d)
		}
	}
	return nil
}

func (w Window) crossesMidnight() bool {
	return w.EndHour*60+w.EndMinute <= w.StartHour*60+w.StartMinute
}

// EndDays returns the weekdays on which the window ends.
func (w Window) EndDays() []int {
	if !w.crossesMidnight() {
		return slices.Clone(w.Days)
	}
	out := make([]int, 0, len(w.Days))
	for _, d := range w.Days {
		out = append(out, (d+1)%7)
	}
	return out
}

func (w Window) String() string {
	return fmt.Sprintf("%s %02d:%02d-%02d:%02d %v", w.ID, w.StartHour, w.StartMinute, w.EndHour, w.EndMinute, w.Days)
}

// Status is the current shield state.
type Status struct {
	Locked     bool       `json:"locked"`
	LockedAt   *time.Time `json:"lockedAt,omitempty"`
	ScheduleID string     `json:"scheduleId,omitempty"`
}

// Capability is the platform app-blocking API. One implementation exists
// per platform; see Open.
type Capability interface {
	Platform() string
	RequestAuthorization(ctx context.Context) (bool, error)
	// PresentPicker shows the platform app picker. scheduleID is empty for
	// the global selection.
	PresentPicker(ctx context.Context, scheduleID string) (Selection, error)
	StartSchedule(ctx context.Context, w Window) error
	StopSchedule(ctx context.Context, id string) error
	StopAllSchedules(ctx context.Context) error
	ActiveSchedules(ctx context.Context) ([]string, error)
	// ApplyShield blocks the selected apps now. scheduleID names the cause,
	// empty for a manual lock.
	ApplyShield(ctx context.Context, scheduleID string) error
	RemoveShield(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
}

// Permissions is the notification permission API the coordinator needs
// before asking for app-blocking authorization.
type Permissions interface {
	Permission(ctx context.Context) (bool, error)
	RequestPermission(ctx context.Context) (bool, error)
}
