// Package notifications pushes task lifecycle events to an ntfy topic when one
// is configured. Notification failures are logged by callers and never block
// pipeline progress.
package notifications
