// Package services defines shared utilities consumed by the pipeline stage
// handlers and provider adapters.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, stage names, lanes, and correlation
//     identifiers for logging and tracing.
//   - The error taxonomy (validation, transient, provider-fatal, composition,
//     store) plus the Wrap helper that keeps failure classification uniform
//     between adapters, the composition engine, and the workflow manager.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
