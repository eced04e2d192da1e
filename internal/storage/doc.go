// Package storage persists distance readings.
//
// Drivers:
//   - "file": JSON Lines, one reading per line
//   - "sqlite": a single SQLite database (pure Go driver)
//
// The Recorder is the scheduler-side half: it subscribes to the event bus,
// batches readings in a fixed ring, and hands full batches to a writer
// goroutine so a slow disk never stalls a tick.
package storage
