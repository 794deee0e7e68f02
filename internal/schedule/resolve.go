package schedule

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// ScanRule decides how a schedule's days are scanned for its next activation.
type ScanRule int

const (
	// FirstMatch looks at today and the six days after it, stops at the
	// first active weekday, and drops the schedule if that slot has already
	// passed. A schedule whose first active day is today with a past time
	// yields nothing even if a later day would qualify.
	FirstMatch ScanRule = iota
	// EarliestFuture keeps scanning past slots that have already gone and
	// reaches today's weekday one week out, so it always finds the earliest
	// activation of a schedule with at least one day.
	EarliestFuture
)

// ParseScanRule maps "first_match" (or "") and "earliest_future".
func ParseScanRule(s string) (ScanRule, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "first_match":
		return FirstMatch, nil
	case "earliest_future":
		return EarliestFuture, nil
	default:
		return FirstMatch, fmt.Errorf("unknown scan rule %q", s)
	}
}

func (r ScanRule) String() string {
	if r == EarliestFuture {
		return "earliest_future"
	}
	return "first_match"
}

// lastOffset is the last day offset the rule scans.
func (r ScanRule) lastOffset() int {
	if r == EarliestFuture {
		return 7
	}
	return 6
}

// Occurrence is one future activation of a schedule.
type Occurrence struct {
	Schedule Schedule
	At       time.Time
}

// NextOccurrence returns the earliest activation strictly after now across
// the enabled schedules, scanning each with FirstMatch. Ties keep the
// schedule that comes first in the slice. It reports false when no enabled
// schedule qualifies.
func NextOccurrence(schedules []Schedule, now time.Time) (Occurrence, bool) {
	return NextOccurrenceWith(schedules, now, FirstMatch)
}

// NextOccurrenceWith is NextOccurrence with an explicit scan rule.
func NextOccurrenceWith(schedules []Schedule, now time.Time, rule ScanRule) (Occurrence, bool) {
	var (
		best  Occurrence
		found bool
	)
	for _, sc := range schedules {
		at, ok := nextFor(sc, now, rule)
		if !ok {
			continue
		}
		if !found || at.Before(best.At) {
			best = Occurrence{Schedule: sc.clone(), At: at}
			found = true
		}
	}
	return best, found
}

// nextFor scans forward day by day from today for an active weekday whose
// slot lies strictly after now, following rule.
func nextFor(sc Schedule, now time.Time, rule ScanRule) (time.Time, bool) {
	if !sc.Enabled || len(sc.DaysOfWeek) == 0 || !sc.Time.Valid() {
		return time.Time{}, false
	}
	y, m, d := now.Date()
	for off := 0; off <= rule.lastOffset(); off++ {
		day := time.Date(y, m, d+off, 0, 0, 0, 0, now.Location())
		if !sc.ActiveOn(day.Weekday()) {
			continue
		}
		at := sc.Time.On(day)
		if at.After(now) {
			return at, true
		}
		if rule == FirstMatch {
			return time.Time{}, false
		}
	}
	return time.Time{}, false
}

// Upcoming lists up to n activations strictly after now across all enabled
// schedules, earliest first.
func Upcoming(schedules []Schedule, now time.Time, n int) []Occurrence {
	if n <= 0 {
		return nil
	}
	var out []Occurrence
	y, m, d := now.Date()
	for _, sc := range schedules {
		if !sc.Enabled || !sc.Time.Valid() {
			continue
		}
		// Two weeks is enough to yield n occurrences for any n <= 7 per schedule.
		for off := 0; off <= 14; off++ {
			day := time.Date(y, m, d+off, 0, 0, 0, 0, now.Location())
			if !sc.ActiveOn(day.Weekday()) {
				continue
			}
			if at := sc.Time.On(day); at.After(now) {
				out = append(out, Occurrence{Schedule: sc.clone(), At: at})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
