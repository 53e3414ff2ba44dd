// Package logging builds the slog loggers used across the daemon and CLI.
//
// It provides a pretty console handler for interactive use, a JSON handler for
// machine consumption, attribute helpers with standardized field keys, and
// context enrichment that stamps task, stage, lane, and correlation IDs pulled
// from services context values.
package logging
