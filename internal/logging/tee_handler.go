package logging

import (
	"context"
	"log/slog"
)

// teeHandler delivers each record to every sink whose level admits it. The
// replay command uses it to mirror the console log into a JSON file.
type teeHandler []slog.Handler

func newTeeHandler(sinks ...slog.Handler) slog.Handler {
	var live teeHandler
	for _, h := range sinks {
		if h != nil {
			live = append(live, h)
		}
	}
	switch len(live) {
	case 0:
		return NoopHandler{}
	case 1:
		return live[0]
	}
	return live
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var first error
	last := len(t) - 1
	for i, h := range t {
		if !h.Enabled(ctx, record.Level) {
			continue
		}
		// Sinks may retain the record, so all but the last get a private copy.
		rec := record
		if i < last {
			rec = record.Clone()
		}
		if err := h.Handle(ctx, rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	return t.derive(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (t teeHandler) derive(fn func(slog.Handler) slog.Handler) teeHandler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = fn(h)
	}
	return out
}

// TeeLogger returns a logger writing to base and to every extra sink.
func TeeLogger(base *slog.Logger, sinks ...slog.Handler) *slog.Logger {
	if base != nil {
		sinks = append([]slog.Handler{base.Handler()}, sinks...)
	}
	return slog.New(newTeeHandler(sinks...))
}
