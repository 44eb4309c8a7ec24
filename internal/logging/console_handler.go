package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// consoleTimeLayout is wall-clock time with milliseconds; frames arrive
// tens of milliseconds apart.
const consoleTimeLayout = "15:04:05.000"

// consoleHandler writes one human-readable line per record:
//
//	15:04:05.123 INFO  engine: candidate confirmed frame_seq=42 label=mug
//
// The component attribute becomes the line prefix. Groups flatten into
// dotted keys.
type consoleHandler struct {
	mu         *sync.Mutex
	w          io.Writer
	level      slog.Level
	withSource bool
	component  string
	prefix     string
	preset     []byte
}

func newConsoleHandler(w io.Writer, level slog.Level, withSource bool) *consoleHandler {
	return &consoleHandler{mu: new(sync.Mutex), w: w, level: level, withSource: withSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *consoleHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	component := h.component
	var fields []byte
	r.Attrs(func(a slog.Attr) bool {
		if h.prefix == "" && a.Key == FieldComponent {
			if component == "" {
				component = attrString(a.Value)
			}
			return true
		}
		fields = appendField(fields, h.prefix, a)
		return true
	})

	var b strings.Builder
	b.WriteString(ts.Local().Format(consoleTimeLayout))
	fmt.Fprintf(&b, " %-5s ", levelLabel(r.Level))
	if component != "" {
		b.WriteString(component)
		b.WriteString(": ")
	}
	if msg := strings.TrimSpace(r.Message); msg != "" {
		b.WriteString(msg)
	} else {
		b.WriteString("(no message)")
	}
	if h.withSource {
		if src := r.Source(); src != nil && src.File != "" {
			fmt.Fprintf(&b, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	b.Write(h.preset)
	b.Write(fields)
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]byte(nil), h.preset...)
	for _, a := range attrs {
		if h.prefix == "" && a.Key == FieldComponent {
			next.component = attrString(a.Value)
			continue
		}
		next.preset = appendField(next.preset, h.prefix, a)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// appendField renders a as " key=value", expanding groups.
func appendField(dst []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return dst
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, member := range a.Value.Group() {
			dst = appendField(dst, prefix, member)
		}
		return dst
	}
	dst = append(dst, ' ')
	dst = append(dst, prefix...)
	dst = append(dst, a.Key...)
	dst = append(dst, '=')
	return append(dst, formatValue(a.Value)...)
}

// attrString renders v without quoting, for event fields and prefixes.
func attrString(v slog.Value) string {
	v = v.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindTime:
		return v.Time().UTC().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	default:
		return v.String()
	}
}

// formatValue is attrString quoted when the result would break key=value
// parsing.
func formatValue(v slog.Value) string {
	s := attrString(v)
	if needsQuotes(s) {
		return strconv.Quote(s)
	}
	return s
}

func needsQuotes(s string) bool {
	if s == "" {
		return true
	}
	return strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}
