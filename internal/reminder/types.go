package reminder

import (
	"context"
	"errors"
)

// IDsKey is the storage key of the registered notification id list.
const IDsKey = "prayer_reminder_ids"

var ErrPermissionDenied = errors.New("notification permission denied")

// Request is one weekly-recurring local notification.
type Request struct {
	ScheduleID string
	Title      string
	Body       string
	Trigger    WeeklyTrigger
	Data       map[string]string
}

// Scheduler is the platform local-notification API.
// Ids returned by ScheduleWeekly are opaque and owned by the scheduler.
type Scheduler interface {
	Permission(ctx context.Context) (granted bool, err error)
	RequestPermission(ctx context.Context) (granted bool, err error)
	ScheduleWeekly(ctx context.Context, req Request) (id string, err error)
	Cancel(ctx context.Context, id string) error
}

// Result summarizes one Sync run. Registered holds only the ids added by
// this run; Retained counts old ids kept because their cancel failed.
type Result struct {
	Cancelled        int
	Retained         int
	Registered       []string
	Failed           int
	PermissionDenied bool
}
