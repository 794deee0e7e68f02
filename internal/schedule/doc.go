// Package schedule owns prayer schedules: the weekly recurring windows that
// drive reminders and app locking.
//
// Store persists the whole collection as one JSON value and serves reads
// from memory. NextOccurrence and Upcoming are pure functions over a slice
// of schedules and a reference instant.
package schedule
