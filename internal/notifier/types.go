package notifier

import (
	"errors"
	"strings"
	"time"

	"prayerfirst/internal/reminder"
)

var (
	ErrUnknownRegistration = errors.New("notifier: unknown registration")
	ErrUnknownDelivery     = errors.New("notifier: unknown delivery")
	ErrNoLink              = errors.New("notifier: delivery carries no deep link")
)

type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionPrompt  Permission = "prompt"
)

// ParsePermission maps a config value to a Permission. Empty means prompt.
func ParsePermission(s string) (Permission, bool) {
	switch Permission(strings.ToLower(strings.TrimSpace(s))) {
	case "", PermissionPrompt:
		return PermissionPrompt, true
	case PermissionGranted:
		return PermissionGranted, true
	case PermissionDenied:
		return PermissionDenied, true
	default:
		return "", false
	}
}

// Config controls the local scheduler.
type Config struct {
	Permission Permission
	RatePerSec int
	QueueSize  int
	Location   *time.Location
}

// Registration is one active weekly notification.
type Registration struct {
	ID         string                 `json:"id"`
	ScheduleID string                 `json:"schedule_id"`
	Title      string                 `json:"title"`
	Trigger    reminder.WeeklyTrigger `json:"trigger"`
	Rule       string                 `json:"rule"`
	Next       time.Time              `json:"next"`
}

// Delivery is a fired notification. It is the Data of a
// notification.delivered event.
type Delivery struct {
	ID             string            `json:"id"`
	RegistrationID string            `json:"registration_id"`
	ScheduleID     string            `json:"schedule_id"`
	Title          string            `json:"title"`
	Body           string            `json:"body"`
	Data           map[string]string `json:"data,omitempty"`
	At             time.Time         `json:"at"`
}
