// Package logging assembles structured slog loggers and formatting helpers used
// across Reticle components.
//
// It owns the console/JSON handlers, picks a format for the current terminal,
// and exposes context-aware helpers so session code can tag log lines with
// session IDs, frame sequence numbers, and correlation IDs. A bounded stream
// hub mirrors recent records for the HTTP API.
package logging
