// Package services defines shared utilities consumed by pipeline stages and
// external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, stage names, chunk indexes, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap and Details helpers so failures
//     surface with a consistent kind and an actionable hint.
//   - A command runner abstraction that keeps external tool invocations
//     testable.
//
// Use these helpers when wiring new stage logic so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
