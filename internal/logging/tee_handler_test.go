package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewTeeHandlerCollapses(t *testing.T) {
	if _, ok := newTeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := newTeeHandler(nil, inner); h != inner {
		t.Fatal("expected single non-nil handler to be returned unwrapped")
	}
}

func TestTeeHandlerRespectsEachLevel(t *testing.T) {
	var infoBuf, debugBuf bytes.Buffer
	info := slog.NewJSONHandler(&infoBuf, &slog.HandlerOptions{Level: slog.LevelInfo})
	debug := slog.NewJSONHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})

	logger := slog.New(newTeeHandler(info, debug))
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee enabled for debug")
	}
	logger.Debug("frame dropped", slog.Uint64(FieldFrameSeq, 7))

	if infoBuf.Len() != 0 {
		t.Fatalf("info handler received debug record: %s", infoBuf.String())
	}
	if !strings.Contains(debugBuf.String(), `"frame_seq":7`) {
		t.Fatalf("debug handler missing record: %s", debugBuf.String())
	}
}

func TestTeeLoggerCarriesAttrs(t *testing.T) {
	var baseBuf, teeBuf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&baseBuf, nil))
	tee := slog.NewJSONHandler(&teeBuf, nil)

	logger := TeeLogger(base, tee).With(slog.String(FieldSessionID, "s-1"))
	logger.Info("state changed", slog.String(FieldState, "DETECTING"))

	for name, buf := range map[string]*bytes.Buffer{"base": &baseBuf, "tee": &teeBuf} {
		out := buf.String()
		if !strings.Contains(out, `"session_id":"s-1"`) || !strings.Contains(out, `"state":"DETECTING"`) {
			t.Fatalf("%s output missing attrs: %s", name, out)
		}
	}
}

func TestTeeLoggerNilBase(t *testing.T) {
	var buf bytes.Buffer
	logger := TeeLogger(nil, slog.NewTextHandler(&buf, nil))
	logger.Info("hello")
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("expected output from tee handler, got %q", buf.String())
	}
}
