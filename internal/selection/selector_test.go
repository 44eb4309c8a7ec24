package selection_test

import (
	"errors"
	"testing"

	"reticle/internal/detection"
	"reticle/internal/selection"
	"reticle/internal/services"
)

var (
	overlay = detection.Overlay{Width: 1000, Height: 1000}
	frame   = &detection.Frame{Seq: 1, Width: 1000, Height: 1000}
)

func boxAt(cx, cy, half float64) detection.Rect {
	return detection.Rect{Left: cx - half, Top: cy - half, Right: cx + half, Bottom: cy + half}
}

func mustSelector(t *testing.T, rule selection.Rule, threshold float64, classify bool) *selection.Selector {
	t.Helper()
	s, err := selection.NewSelector(rule, overlay, threshold, classify)
	if err != nil {
		t.Fatalf("NewSelector returned error: %v", err)
	}
	return s
}

func TestNewSelectorRejectsInvalidThreshold(t *testing.T) {
	for _, threshold := range []float64{0, -1} {
		if _, err := selection.NewSelector(selection.RuleProximity, overlay, threshold, false); !errors.Is(err, services.ErrConfiguration) {
			t.Fatalf("threshold %v: expected configuration error, got %v", threshold, err)
		}
	}
}

func TestProximityFirstMatchWins(t *testing.T) {
	s := mustSelector(t, selection.RuleProximity, 100, false)
	items := []detection.Item{
		{Box: boxAt(100, 100, 20), TrackingID: detection.Tracked(1)},
		{Box: boxAt(560, 500, 20), TrackingID: detection.Tracked(2)},
		{Box: boxAt(500, 500, 20), TrackingID: detection.Tracked(3)},
	}

	got, ok := s.Select(frame, items)
	if !ok {
		t.Fatal("expected a candidate")
	}
	if got.Index != 1 || got.Identity() != detection.Tracked(2) {
		t.Fatalf("expected first qualifying item (index 1), got index %d id %v", got.Index, got.Identity())
	}
	if got.Frame != frame {
		t.Fatal("candidate must reference its source frame")
	}
}

func TestProximityThresholdIsStrict(t *testing.T) {
	s := mustSelector(t, selection.RuleProximity, 100, false)
	if _, ok := s.Select(frame, []detection.Item{{Box: boxAt(600, 500, 10)}}); ok {
		t.Fatal("item exactly at the threshold must not qualify")
	}
	if _, ok := s.Select(frame, []detection.Item{{Box: boxAt(599, 500, 10)}}); !ok {
		t.Fatal("item inside the threshold must qualify")
	}
	if _, ok := s.Select(frame, nil); ok {
		t.Fatal("empty list must select nothing")
	}
}

func TestClassificationFilterSkipsUnknown(t *testing.T) {
	s := mustSelector(t, selection.RuleProximity, 100, true)
	items := []detection.Item{
		{Box: boxAt(500, 500, 10), Category: detection.CategoryUnknown},
		{Box: boxAt(510, 500, 10), Category: detection.CategoryFood},
	}
	got, ok := s.Select(frame, items)
	if !ok || got.Index != 0 || got.Item.Category != detection.CategoryFood {
		t.Fatalf("expected classified item at filtered index 0, got %v %+v", ok, got)
	}
	if filtered := s.Filter(items); len(filtered) != 1 || filtered[0].Category != detection.CategoryFood {
		t.Fatalf("unexpected filtered items: %+v", filtered)
	}
	if unfiltered := mustSelector(t, selection.RuleProximity, 100, false).Filter(items); len(unfiltered) != 2 {
		t.Fatalf("filter must be disabled without classification, got %d", len(unfiltered))
	}
}

func TestReticleOverlapConsidersOnlyFirstItem(t *testing.T) {
	s := mustSelector(t, selection.RuleReticleOverlap, 50, false)
	far := detection.Item{Box: boxAt(100, 100, 20)}
	centered := detection.Item{Box: boxAt(500, 500, 20)}

	if _, ok := s.Select(frame, []detection.Item{far, centered}); ok {
		t.Fatal("prominent selection must ignore items after the first")
	}
	if got, ok := s.Select(frame, []detection.Item{{Box: boxAt(560, 500, 15)}}); !ok || got.Index != 0 {
		t.Fatal("expected box overlapping the reticle to be selected")
	}
}

func TestContainsCenterSelectsBarcode(t *testing.T) {
	s := mustSelector(t, selection.RuleContainsCenter, 1, false)
	items := []detection.Item{
		{Box: boxAt(200, 200, 50), Value: "left"},
		{Box: detection.Rect{Left: 300, Top: 450, Right: 700, Bottom: 550}, Value: "centered"},
	}
	got, ok := s.Select(frame, items)
	if !ok || got.Item.Value != "centered" {
		t.Fatalf("expected centered barcode, got %v %+v", ok, got)
	}
}

func TestSizeProgress(t *testing.T) {
	tests := []struct {
		width   float64
		percent float64
		want    float64
	}{
		{width: 250, percent: 50, want: 0.5},
		{width: 500, percent: 50, want: 1},
		{width: 900, percent: 50, want: 1},
		{width: 10, percent: 0, want: 1},
	}
	for _, tt := range tests {
		box := detection.Rect{Left: 0, Top: 0, Right: tt.width, Bottom: 10}
		if got := selection.SizeProgress(box, overlay, tt.percent); got != tt.want {
			t.Fatalf("SizeProgress(width=%v, %v%%) = %v, want %v", tt.width, tt.percent, got, tt.want)
		}
	}
}
