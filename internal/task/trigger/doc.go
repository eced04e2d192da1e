// Package trigger turns human schedule strings into task records.
//
// Intervals map directly onto task.Task.Interval. Cron expressions (robfig/cron)
// become a polling task whose callback is guarded by a Gate, so calendar-style
// jobs (hourly pruning, daily summaries) share the same cooperative loop.
package trigger
