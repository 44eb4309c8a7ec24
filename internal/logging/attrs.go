package logging

import (
	"context"
	"log/slog"
	"time"
)

// Typed attribute constructors keep call sites free of a direct slog import.

func Bool(key string, value bool) slog.Attr { return slog.Bool(key, value) }

func Duration(key string, value time.Duration) slog.Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) slog.Attr { return slog.Float64(key, value) }

func Int(key string, value int) slog.Attr { return slog.Int(key, value) }

func Uint64(key string, value uint64) slog.Attr { return slog.Uint64(key, value) }

func String(key, value string) slog.Attr { return slog.String(key, value) }

// Error records err under the "error" key. A nil error is still recorded so
// a missing cause is visible in the log line.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// NewNop returns a logger that discards everything.
func NewNop() *slog.Logger {
	return slog.New(NoopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a discarding one.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// FieldImpact describes what the operator loses because of a warning.
const FieldImpact = "impact"

const defaultErrorHint = "check daemon logs for details"

// WarnWithContext logs a warning that always carries event_type, error_hint
// and impact. Attributes supplied by the caller win over the defaults.
func WarnWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, defaultErrorHint),
		String(FieldImpact, "detection continues with reduced accuracy"),
	)
	logger.LogAttrs(context.Background(), slog.LevelWarn, msg, attrs...)
}

// ErrorWithContext logs an error that always carries event_type and
// error_hint.
func ErrorWithContext(logger *slog.Logger, msg, eventType string, attrs ...slog.Attr) {
	if logger == nil {
		return
	}
	attrs = withDefaults(attrs,
		String(FieldEventType, eventType),
		String(FieldErrorHint, defaultErrorHint),
	)
	logger.LogAttrs(context.Background(), slog.LevelError, msg, attrs...)
}

// withDefaults appends each default whose key is absent from attrs.
func withDefaults(attrs []slog.Attr, defaults ...slog.Attr) []slog.Attr {
	present := make(map[string]struct{}, len(attrs))
	for _, a := range attrs {
		present[a.Key] = struct{}{}
	}
	for _, d := range defaults {
		if _, ok := present[d.Key]; !ok {
			attrs = append(attrs, d)
		}
	}
	return attrs
}

// NoopHandler discards all log output.
type NoopHandler struct{}

func (NoopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (NoopHandler) Handle(context.Context, slog.Record) error { return nil }

func (NoopHandler) WithAttrs([]slog.Attr) slog.Handler { return NoopHandler{} }

func (NoopHandler) WithGroup(string) slog.Handler { return NoopHandler{} }
