package reminder

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	"prayerfirst/internal/schedule"
)

// referenceSunday anchors weekly trigger arithmetic. Any Sunday works; the
// date itself never leaves this file.
var referenceSunday = time.Date(2024, time.January, 7, 0, 0, 0, 0, time.UTC)

// WeeklyTrigger fires every week on Weekday at Hour:Minute local time.
type WeeklyTrigger struct {
	Weekday time.Weekday
	Hour    int
	Minute  int
}

func (t WeeklyTrigger) String() string {
	return fmt.Sprintf("%s %02d:%02d", t.Weekday, t.Hour, t.Minute)
}

// TriggerFor places clock on weekday and moves it lead earlier. A lead that
// crosses midnight lands on the previous weekday (Sunday 00:10 minus 30m is
// Saturday 23:40).
func TriggerFor(clock schedule.Clock, weekday time.Weekday, lead time.Duration) WeeklyTrigger {
	t := referenceSunday.AddDate(0, 0, int(weekday))
	t = time.Date(t.Year(), t.Month(), t.Day(), clock.Hour, clock.Minute, 0, 0, time.UTC)
	if lead > 0 {
		t = t.Add(-lead)
	}
	return WeeklyTrigger{Weekday: t.Weekday(), Hour: t.Hour(), Minute: t.Minute()}
}

var rruleWeekdays = [7]rrule.Weekday{rrule.SU, rrule.MO, rrule.TU, rrule.WE, rrule.TH, rrule.FR, rrule.SA}

func (t WeeklyTrigger) option(loc *time.Location) rrule.ROption {
	if loc == nil {
		loc = time.Local
	}
	return rrule.ROption{
		Freq:      rrule.WEEKLY,
		Byweekday: []rrule.Weekday{rruleWeekdays[t.Weekday]},
		Byhour:    []int{t.Hour},
		Byminute:  []int{t.Minute},
		Bysecond:  []int{0},
		Dtstart:   time.Date(referenceSunday.Year(), referenceSunday.Month(), referenceSunday.Day(), 0, 0, 0, 0, loc),
	}
}

// Rule renders the trigger as an RFC 5545 RRULE value.
func (t WeeklyTrigger) Rule() string {
	opt := t.option(time.UTC)
	return opt.RRuleString()
}

// Next returns the first fire time strictly after after, in after's location.
func (t WeeklyTrigger) Next(after time.Time) (time.Time, error) {
	r, err := rrule.NewRRule(t.option(after.Location()))
	if err != nil {
		return time.Time{}, fmt.Errorf("weekly rule %s: %w", t, err)
	}
	return r.After(after, false), nil
}
