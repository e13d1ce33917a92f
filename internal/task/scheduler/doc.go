// Package scheduler is a registry of named timers.
//
// Repeating timers run on robfig/cron with a fixed first-run delay; one-shot
// timers use time.AfterFunc. Timers only trigger: every fire is enqueued into
// the task engine, which executes it with a timeout and overlap control.
// Registering a name that already exists replaces the previous timer, and
// Remove cancels it.
package scheduler
