package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"

	"reticle/internal/config"
)

// Options describes logger construction parameters.
type Options struct {
	// Level is one of debug, info, warn or error. Unknown values mean info.
	Level string
	// Format is console, json or auto. Auto picks console on a terminal.
	Format string
	// OutputPaths and ErrorOutputPaths are merged into one sink set. The
	// names stdout and stderr select the process streams; anything else is
	// a file opened for append.
	OutputPaths      []string
	ErrorOutputPaths []string
	// Stream, when set, receives a copy of every record for API streaming.
	Stream *StreamHub
}

// New builds a logger from opts. Debug level also records call sites.
func New(opts Options) (*slog.Logger, error) {
	level := parseLevel(opts.Level)
	out, err := openSinks(opts.OutputPaths, opts.ErrorOutputPaths)
	if err != nil {
		return nil, err
	}
	withSource := level <= slog.LevelDebug

	var handler slog.Handler
	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "", "auto":
		if stdoutIsTerminal() {
			handler = newConsoleHandler(out, level, withSource)
		} else {
			handler = newJSONHandler(out, level, withSource)
		}
	case "console":
		handler = newConsoleHandler(out, level, withSource)
	case "json":
		handler = newJSONHandler(out, level, withSource)
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	if opts.Stream != nil {
		handler = newStreamHandler(handler, opts.Stream)
	}
	return slog.New(handler), nil
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// NewFromConfig builds the daemon logger. Records go to stdout and to
// logPath, which defaults to reticle.log under paths.log_dir.
func NewFromConfig(cfg *config.Config, logPath string, hub *StreamHub) (*slog.Logger, error) {
	if cfg == nil {
		return New(Options{Stream: hub})
	}
	if logPath == "" && cfg.Paths.LogDir != "" {
		logPath = filepath.Join(cfg.Paths.LogDir, "reticle.log")
	}
	sinks := []string{"stdout"}
	if logPath != "" {
		sinks = append(sinks, logPath)
	}
	return New(Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: sinks,
		Stream:      hub,
	})
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// openSinks resolves the configured paths into one writer. Duplicate paths
// are opened once and an empty set falls back to stdout.
func openSinks(groups ...[]string) (io.Writer, error) {
	seen := make(map[string]bool)
	var writers []io.Writer
	for _, paths := range groups {
		for _, p := range paths {
			p = strings.TrimSpace(p)
			if p == "" || seen[p] {
				continue
			}
			seen[p] = true
			w, err := openSink(p)
			if err != nil {
				return nil, err
			}
			writers = append(writers, w)
		}
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	}
	return io.MultiWriter(writers...), nil
}

func openSink(path string) (io.Writer, error) {
	switch path {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure log directory: %w", err)
		}
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return file, nil
}

// jsonTimeLayout keeps millisecond precision so records of consecutive
// frames stay ordered when read back.
const jsonTimeLayout = "2006-01-02T15:04:05.000Z07:00"

func newJSONHandler(w io.Writer, level slog.Level, withSource bool) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: withSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.TimeKey:
				return slog.String("ts", a.Value.Time().UTC().Format(jsonTimeLayout))
			case slog.LevelKey:
				return slog.String("level", strings.ToLower(a.Value.String()))
			case slog.SourceKey:
				if src, ok := a.Value.Any().(*slog.Source); ok && src != nil {
					return slog.String("source", fmt.Sprintf("%s:%d", filepath.Base(src.File), src.Line))
				}
			}
			return a
		},
	})
}
