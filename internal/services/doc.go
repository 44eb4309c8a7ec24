// Package services defines shared utilities consumed by the detection engine
// and its external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, frame sequence numbers, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     into the engine's taxonomy (detection, search, stale, configuration).
//
// Use these helpers when wiring new backends so operational behaviour (error
// handling, observability) stays uniform across the engine.
package services
