// Package notifier delivers engine notifications asynchronously.
//
// Notify accepts a transport.Notification, suppresses repeats inside a dedup
// window and enqueues one delivery job per configured adapter. Workers drain
// the queue behind a shared token bucket and retry failed sends with jittered
// exponential backoff.
//
// # Dedup
//
// The key is Notification.DedupKey, or a hash of kind, user, title and text.
// Suppression windows live in memory and, when PersistDedup is set, in the
// storage dedup table so a restart does not repeat "due today" reminders.
//
// # History
//
// Accepted notifications are kept in a bounded in-memory history that backs
// the notifications API.
package notifier
