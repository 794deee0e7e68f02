// Package storage provides the keyed persistence layer used by prayerfirst.
//
// Values are opaque byte blobs (JSON in practice) addressed by a string key:
//   - prayer_schedules     (schedule collection)
//   - prayer_reminder_ids  (registered reminder notification ids)
//   - lock_status          (simulated shield state)
package storage
