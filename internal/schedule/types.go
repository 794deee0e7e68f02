package schedule

import (
	"errors"
	"slices"
	"time"
)

var (
	ErrInvalid  = errors.New("invalid schedule")
	ErrNotFound = errors.New("schedule not found")
)

// MaxNotifyBefore bounds the reminder lead time to less than one week.
const MaxNotifyBefore = 7 * 24 * 60

// Schedule is a named weekly recurring prayer time.
//
// DaysOfWeek uses time.Weekday numbering (0=Sunday..6=Saturday).
// AppTokens are platform-owned and opaque here.
type Schedule struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Time         Clock     `json:"time"`
	DaysOfWeek   []int     `json:"daysOfWeek"`
	Enabled      bool      `json:"enabled"`
	AppTokens    []string  `json:"appTokens,omitempty"`
	NotifyBefore *int      `json:"notifyBefore,omitempty"`
	IsCustom     bool      `json:"isCustom"`
	Icon         string    `json:"icon,omitempty"`
	CreatedAt    time.Time `json:"createdAt,omitzero"`
	UpdatedAt    time.Time `json:"updatedAt,omitzero"`
}

// ActiveOn reports whether the schedule includes weekday wd.
func (s Schedule) ActiveOn(wd time.Weekday) bool {
	return slices.Contains(s.DaysOfWeek, int(wd))
}

// LeadTime returns the reminder lead time, zero if unset.
func (s Schedule) LeadTime() time.Duration {
	if s.NotifyBefore == nil || *s.NotifyBefore <= 0 {
		return 0
	}
	return time.Duration(*s.NotifyBefore) * time.Minute
}

// Weekdays returns the distinct active weekdays in ascending order.
func (s Schedule) Weekdays() []time.Weekday {
	out := make([]time.Weekday, 0, len(s.DaysOfWeek))
	for d := 0; d < 7; d++ {
		if slices.Contains(s.DaysOfWeek, d) {
			out = append(out, time.Weekday(d))
		}
	}
	return out
}

func (s Schedule) clone() Schedule {
	cp := s
	cp.DaysOfWeek = slices.Clone(s.DaysOfWeek)
	cp.AppTokens = slices.Clone(s.AppTokens)
	if s.NotifyBefore != nil {
		n := *s.NotifyBefore
		cp.NotifyBefore = &n
	}
	return cp
}

// Minutes returns a pointer to n, for NotifyBefore literals.
func Minutes(n int) *int { return &n }
