package visionapi

import (
	"context"
	"errors"
	"testing"

	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/genproto/googleapis/rpc/status"

	"reticle/internal/detection"
	"reticle/internal/selection"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func poly(x0, y0, x1, y1 float32) *visionpb.BoundingPoly {
	return &visionpb.BoundingPoly{NormalizedVertices: []*visionpb.NormalizedVertex{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1},
	}}
}

func testFrame() *detection.Frame {
	return &detection.Frame{Seq: 3, Width: 1000, Height: 2000, Format: "jpeg", Data: []byte{0xff, 0xd8, 0xff}}
}

func TestDetectConvertsObjects(t *testing.T) {
	var captured *visionpb.BatchAnnotateImagesRequest
	annotate := func(_ context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		captured = req
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
			LocalizedObjectAnnotations: []*visionpb.LocalizedObjectAnnotation{
				{Name: "Mug", Score: 0.91, BoundingPoly: poly(0.4, 0.4, 0.6, 0.5)},
				{Name: "Spaceship", Score: 0.7, BoundingPoly: poly(0, 0, 0.1, 0.1)},
				{Name: "Shoe", Score: 0.2, BoundingPoly: poly(0.1, 0.1, 0.2, 0.2)},
				{Name: "Plant", Score: 0.8},
			},
		}}}, nil
	}
	det := newDetector(annotate, nil, Options{MinScore: 0.5, MaxResults: 5}, nil)

	items, err := det.Detect(context.Background(), testFrame())
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %+v", items)
	}
	mug := items[0]
	if mug.Category != detection.CategoryHomeGood || mug.Label != "Mug" || mug.TrackingID.Valid {
		t.Fatalf("unexpected mug item %+v", mug)
	}
	want := detection.Rect{Left: 400, Top: 800, Right: 600, Bottom: 1000}
	if diff(mug.Box.Left, want.Left) || diff(mug.Box.Top, want.Top) || diff(mug.Box.Right, want.Right) || diff(mug.Box.Bottom, want.Bottom) {
		t.Fatalf("box = %+v, want %+v", mug.Box, want)
	}
	if items[1].Category != detection.CategoryUnknown {
		t.Fatalf("unmapped name should be unknown, got %q", items[1].Category)
	}

	feature := captured.GetRequests()[0].GetFeatures()[0]
	if feature.GetType() != visionpb.Feature_OBJECT_LOCALIZATION || feature.GetMaxResults() != 5 {
		t.Fatalf("unexpected feature %+v", feature)
	}
}

func diff(a, b float64) bool {
	d := a - b
	return d > 0.01 || d < -0.01
}

func singleObject(box *visionpb.BoundingPoly) annotateFunc {
	return func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
			LocalizedObjectAnnotations: []*visionpb.LocalizedObjectAnnotation{
				{Name: "Mug", Score: 0.9, BoundingPoly: box},
			},
		}}}, nil
	}
}

func TestDetectReturnsUprightBoxes(t *testing.T) {
	tests := []struct {
		name     string
		rotation detection.Rotation
		want     detection.Rect
	}{
		{name: "upright", rotation: detection.Rotate0, want: detection.Rect{Left: 100, Top: 400, Right: 300, Bottom: 800}},
		{name: "rotate 90", rotation: detection.Rotate90, want: detection.Rect{Left: 1200, Top: 100, Right: 1600, Bottom: 300}},
		{name: "rotate 180", rotation: detection.Rotate180, want: detection.Rect{Left: 700, Top: 1200, Right: 900, Bottom: 1600}},
		{name: "rotate 270", rotation: detection.Rotate270, want: detection.Rect{Left: 400, Top: 700, Right: 800, Bottom: 900}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			det := newDetector(singleObject(poly(0.1, 0.2, 0.3, 0.4)), nil, Options{}, nil)
			frame := testFrame()
			frame.Rotation = tc.rotation

			items, err := det.Detect(context.Background(), frame)
			if err != nil {
				t.Fatalf("Detect: %v", err)
			}
			if len(items) != 1 {
				t.Fatalf("expected 1 item, got %d", len(items))
			}
			got := items[0].Box
			if diff(got.Left, tc.want.Left) || diff(got.Top, tc.want.Top) || diff(got.Right, tc.want.Right) || diff(got.Bottom, tc.want.Bottom) {
				t.Fatalf("box = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestCenteredObjectSelectableOnRotatedFrame(t *testing.T) {
	det := newDetector(singleObject(poly(0.45, 0.45, 0.55, 0.55)), nil, Options{}, nil)
	frame := &detection.Frame{Seq: 1, Width: 1280, Height: 720, Rotation: detection.Rotate90, Format: "jpeg", Data: []byte{0xff, 0xd8, 0xff}}

	items, err := det.Detect(context.Background(), frame)
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	sel, err := selection.NewSelector(selection.RuleProximity, detection.Overlay{Width: 720, Height: 1280}, 96, false)
	if err != nil {
		t.Fatalf("NewSelector: %v", err)
	}
	candidate, ok := sel.Select(frame, items)
	if !ok {
		t.Fatalf("centered object not selected, box %+v", items[0].Box)
	}
	if candidate.Item.Label != "Mug" {
		t.Fatalf("unexpected candidate %+v", candidate.Item)
	}
}

func TestDetectReportsAPIErrors(t *testing.T) {
	annotate := func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return &visionpb.BatchAnnotateImagesResponse{Responses: []*visionpb.AnnotateImageResponse{{
			Error: &status.Status{Code: 3, Message: "bad image"},
		}}}, nil
	}
	det := newDetector(annotate, nil, Options{}, nil)
	if _, err := det.Detect(context.Background(), testFrame()); err == nil {
		t.Fatal("expected API error")
	}

	failing := func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return nil, errors.New("unavailable")
	}
	det = newDetector(failing, nil, Options{}, nil)
	if _, err := det.Detect(context.Background(), testFrame()); err == nil {
		t.Fatal("expected transport error")
	}
}

func TestDetectRequiresImageData(t *testing.T) {
	called := false
	annotate := func(context.Context, *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		called = true
		return &visionpb.BatchAnnotateImagesResponse{}, nil
	}
	det := newDetector(annotate, nil, Options{}, nil)
	frame := testFrame()
	frame.Data = nil
	if _, err := det.Detect(context.Background(), frame); err == nil {
		t.Fatal("expected error for empty frame")
	}
	if called {
		t.Fatal("API must not be called without image data")
	}
}

func TestCloseDelegates(t *testing.T) {
	closed := 0
	det := newDetector(nil, closerFunc(func() error { closed++; return nil }), Options{}, nil)
	if err := det.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if closed != 1 {
		t.Fatalf("closed = %d", closed)
	}
}
