// Package services defines shared utilities consumed by the plan coordinator
// and the surrounding daemon wiring.
//
// Key responsibilities:
//   - Context helpers that stamp plan IDs, sheet IDs, stage names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the orchestrator's error taxonomy (absorbed vs propagated).
//
// Use these helpers when wiring new event handling so operational behaviour
// (error handling, observability) stays uniform across the pipeline.
package services
