package replay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"reticle/internal/detection"
	"reticle/internal/detector/replay"
	"reticle/internal/services"
)

const sampleScript = `
tick_ms = 100
frame_width = 1000
frame_height = 1000

[[frames]]
repeat = 2

  [[frames.items]]
  tracking_id = 1
  box = [450.0, 450.0, 550.0, 550.0]
  category = "home_good"
  label = "Coffee mug"

[[frames]]
fail = "camera glitch"

[[frames]]

  [[frames.items]]
  box = [400.0, 480.0, 600.0, 520.0]
  value = "4006381333931"
  format = "EAN_13"
`

func TestParseExpandsSteps(t *testing.T) {
	script, err := replay.Parse([]byte(sampleScript))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if script.Len() != 4 {
		t.Fatalf("Len = %d, want 4", script.Len())
	}
	if script.Tick().Milliseconds() != 100 {
		t.Fatalf("Tick = %s", script.Tick())
	}

	frames := script.Expand()
	if got := frames[0].Items[0].TrackingID; got != detection.Tracked(1) {
		t.Fatalf("tracking id = %s", got)
	}
	if frames[0].Items[0].Category != detection.CategoryHomeGood {
		t.Fatalf("category = %q", frames[0].Items[0].Category)
	}
	if frames[2].Err == nil {
		t.Fatal("expected scripted failure on frame 3")
	}
	barcode := frames[3].Items[0]
	if barcode.TrackingID.Valid || barcode.Value != "4006381333931" || barcode.Category != detection.CategoryUnknown {
		t.Fatalf("unexpected barcode item %+v", barcode)
	}
}

func TestParseRejectsInvalidScripts(t *testing.T) {
	tests := map[string]string{
		"no frames":        "tick_ms = 10\n",
		"bad rotation":     "rotation = 45\n[[frames]]\n",
		"inverted box":     "[[frames]]\n[[frames.items]]\nbox = [10.0, 10.0, 5.0, 20.0]\n",
		"unknown category": "[[frames]]\n[[frames.items]]\ncategory = \"vehicle\"\n",
		"unknown field":    "speed = 3\n[[frames]]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := replay.Parse([]byte(data))
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestDetectorReplaysBySequence(t *testing.T) {
	script, err := replay.Parse([]byte(sampleScript))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	det := replay.New(script)
	ctx := context.Background()

	items, err := det.Detect(ctx, &detection.Frame{Seq: 2})
	if err != nil || len(items) != 1 || items[0].Label != "Coffee mug" {
		t.Fatalf("frame 2: items=%+v err=%v", items, err)
	}
	if _, err := det.Detect(ctx, &detection.Frame{Seq: 3}); err == nil {
		t.Fatal("frame 3: expected scripted failure")
	}
	items, err = det.Detect(ctx, &detection.Frame{Seq: 9})
	if err != nil || items != nil {
		t.Fatalf("past the end: items=%+v err=%v", items, err)
	}
	if det.Calls() != 3 {
		t.Fatalf("Calls = %d, want 3", det.Calls())
	}

	if err := det.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := det.Detect(ctx, &detection.Frame{Seq: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("detect after close: %v", err)
	}
}

func TestDetectorLoops(t *testing.T) {
	script, err := replay.Parse([]byte("loop = true\n" + sampleScript))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	det := replay.New(script)
	items, err := det.Detect(context.Background(), &detection.Frame{Seq: 5})
	if err != nil || len(items) != 1 || items[0].Label != "Coffee mug" {
		t.Fatalf("frame 5 should wrap to frame 1: items=%+v err=%v", items, err)
	}
}

func TestDetectorHonoursLatencyCancellation(t *testing.T) {
	script, err := replay.Parse([]byte("latency_ms = 5000\n" + sampleScript))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	det := replay.New(script)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := det.Detect(ctx, &detection.Frame{Seq: 1}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestLoadReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	if err := os.WriteFile(path, []byte(sampleScript), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	script, err := replay.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if script.FrameWidth != 1000 {
		t.Fatalf("FrameWidth = %d", script.FrameWidth)
	}
	if _, err := replay.Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for missing script")
	}
}
