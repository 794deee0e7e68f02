package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day. It carries no date and no zone.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// On returns the instant at this clock time on the calendar day of day,
// in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, day.Location())
}

// clockEpoch is the date stamped onto serialized clocks. Only hour and
// minute are ever read back.
var clockEpoch = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Stamp formats the clock as an ISO-8601 timestamp on a fixed date in loc.
// A nil loc means UTC.
func (c Clock) Stamp(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	t := time.Date(clockEpoch.Year(), clockEpoch.Month(), clockEpoch.Day(), c.Hour, c.Minute, 0, 0, loc)
	return t.Format(time.RFC3339)
}

// ParseStamp reads an ISO-8601 timestamp or a bare "HH:MM". A timestamp is
// converted to loc before hour and minute are taken, so "23:00Z" in
// Asia/Jakarta is 06:00. A nil loc keeps the timestamp's own offset.
func ParseStamp(s string, loc *time.Location) (Clock, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		if loc != nil {
			t = t.In(loc)
		}
		return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
	}
	return ParseClock(s)
}

// MarshalJSON stores the clock as a UTC ISO-8601 timestamp.
func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Stamp(time.UTC))
}

// UnmarshalJSON accepts an ISO-8601 timestamp or a bare "HH:MM". Without a
// location to convert into, hour and minute are taken in the timestamp's own
// offset; Store decodes through ParseStamp with its configured location.
func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("schedule time: %w", err)
	}
	parsed, err := ParseStamp(s, nil)
	if err != nil {
		return fmt.Errorf("schedule time: %w", err)
	}
	*c = parsed
	return nil
}
