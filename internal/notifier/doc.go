// Package notifier is the in-process local notification scheduler.
//
// It implements reminder.Scheduler for hosts without a platform notification
// center. Each weekly registration becomes a cron entry; a fired entry is
// queued, passed through a rate limiter and delivered as a
// notification.delivered event on the bus.
//
// # Permission
//
// The permission state comes from configuration: "granted", "denied" or
// "prompt" (granted once RequestPermission is called).
//
// # Taps
//
// Delivered notifications are kept in a short history. Tap replays the
// payload's deep link as a deeplink.open event, the way a user tapping the
// notification would.
package notifier
