package detection_test

import (
	"math"
	"testing"

	"reticle/internal/detection"
)

func TestOverlayTranslateRectSwapsForRotation(t *testing.T) {
	overlay := detection.Overlay{Width: 1080, Height: 1920}
	frame := &detection.Frame{Seq: 1, Width: 1280, Height: 720, Rotation: detection.Rotate90}

	got := overlay.TranslateRect(frame, detection.Rect{Left: 180, Top: 320, Right: 540, Bottom: 960})
	want := detection.Rect{Left: 270, Top: 480, Right: 810, Bottom: 1440}
	if got != want {
		t.Fatalf("TranslateRect = %+v, want %+v", got, want)
	}
	if d := overlay.DistanceToCenter(got); d != 0 {
		t.Fatalf("expected centered box, distance %v", d)
	}
}

func TestRectGeometry(t *testing.T) {
	r := detection.Rect{Left: 10, Top: 10, Right: 30, Bottom: 50}
	if x, y := r.Center(); x != 20 || y != 30 {
		t.Fatalf("Center = (%v, %v)", x, y)
	}
	if !r.Contains(10, 50) || r.Contains(31, 20) {
		t.Fatal("Contains mismatch at edges")
	}
	if !r.Intersects(detection.Rect{Left: 29, Top: 49, Right: 40, Bottom: 60}) {
		t.Fatal("expected overlap")
	}
	if r.Intersects(detection.Rect{Left: 30, Top: 10, Right: 40, Bottom: 50}) {
		t.Fatal("touching edges must not intersect")
	}
}

func TestIdentityEquality(t *testing.T) {
	if (detection.Identity{}) != (detection.Identity{}) {
		t.Fatal("absent identities must compare equal")
	}
	if detection.Tracked(0) == (detection.Identity{}) {
		t.Fatal("tracked id 0 must differ from absent identity")
	}
	if detection.Tracked(4).String() != "4" || (detection.Identity{}).String() != "untracked" {
		t.Fatal("unexpected identity strings")
	}
}

func TestCandidateIdentity(t *testing.T) {
	tracked := detection.Candidate{Item: detection.Item{TrackingID: detection.Tracked(3), Value: "123"}}
	if tracked.Identity() != detection.Tracked(3) {
		t.Fatalf("tracking id must win, got %v", tracked.Identity())
	}
	a := detection.Candidate{Item: detection.Item{Value: "4006381333931"}}
	b := detection.Candidate{Item: detection.Item{Value: "9780201379624"}}
	if a.Identity() == b.Identity() {
		t.Fatal("different barcode values must have different identities")
	}
	if a.Identity() != (detection.Candidate{Item: detection.Item{Value: " 4006381333931 "}}).Identity() {
		t.Fatal("same barcode value must keep its identity")
	}
	if a.Identity().Valid || a.Identity().String() != "barcode:4006381333931" {
		t.Fatalf("unexpected barcode identity %+v", a.Identity())
	}
	if (detection.Candidate{Item: detection.Item{Label: "Mug"}}).Identity() != (detection.Identity{}) {
		t.Fatal("untracked objects share the absent identity")
	}
}

func TestUprightPoint(t *testing.T) {
	tests := []struct {
		rotation detection.Rotation
		x, y     float64
	}{
		{detection.Rotate0, 0.1, 0.2},
		{detection.Rotate90, 0.8, 0.1},
		{detection.Rotate180, 0.9, 0.8},
		{detection.Rotate270, 0.2, 0.9},
	}
	for _, tc := range tests {
		x, y := tc.rotation.UprightPoint(0.1, 0.2)
		if math.Abs(x-tc.x) > 1e-9 || math.Abs(y-tc.y) > 1e-9 {
			t.Fatalf("rotation %d: got (%v, %v), want (%v, %v)", tc.rotation, x, y, tc.x, tc.y)
		}
	}
}

func TestCategoryDisplayName(t *testing.T) {
	tests := map[detection.Category]string{
		detection.CategoryFashionGood: "Fashion Good",
		detection.CategoryFood:        "Food",
		"":                            "Unknown",
	}
	for category, want := range tests {
		if got := category.DisplayName(); got != want {
			t.Fatalf("%q.DisplayName() = %q, want %q", category, got, want)
		}
	}
	if detection.CategoryUnknown.Known() || !detection.CategoryPlant.Known() {
		t.Fatal("unexpected Known classification")
	}
}

func TestCandidateLookupKey(t *testing.T) {
	tests := []struct {
		item detection.Item
		want string
	}{
		{detection.Item{Value: " 012345 "}, "barcode:012345"},
		{detection.Item{Label: "Coffee Mug"}, "object:coffee mug"},
		{detection.Item{}, ""},
	}
	for _, tt := range tests {
		if got := (detection.Candidate{Item: tt.item}).LookupKey(); got != tt.want {
			t.Fatalf("LookupKey(%+v) = %q, want %q", tt.item, got, tt.want)
		}
	}
}

func TestFrameValidate(t *testing.T) {
	if err := (&detection.Frame{Width: 10, Height: 10, Rotation: 45}).Validate(); err == nil {
		t.Fatal("expected rotation error")
	}
	if err := (&detection.Frame{Width: 0, Height: 10}).Validate(); err == nil {
		t.Fatal("expected dimension error")
	}
	if err := (&detection.Frame{Width: 10, Height: 20, Rotation: detection.Rotate270}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
