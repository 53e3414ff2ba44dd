// Package queue persists video generation tasks in SQLite and exposes helpers
// for driving their lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, heartbeat tracking, stuck-task recovery, and the status
// transitions that mirror the public pipeline enum. Tasks capture prompt,
// structured script, progress, credit reservations, and pause/cancel flags so
// stages can coordinate without additional state.
//
// Completed, failed, and cancelled tasks are immutable: the Store rejects any
// update that would move a task out of a terminal status.
//
// Treat this package as the single source of truth for queue semantics; when
// you add new statuses or fields, update schema.sql and bump schemaVersion.
package queue
