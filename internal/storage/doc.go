// Package storage is the SQLite persistence layer of the bot.
//
// It holds:
//   - the per-subject schedule of reminder tasks (scheduled_task)
//   - the last known connect/disconnect status per subject (status_record)
//   - onboarding sessions, used to resume scanning after a restart (session)
//   - optional notifier dedup state (notify_dedup)
//
// The schema is versioned with darwin migrations.
package storage
