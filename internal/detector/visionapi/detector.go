// Package visionapi detects objects in camera frames with Google Cloud Vision
// object localization.
//
// Cloud Vision returns normalized bounding polygons and no tracking ids, so
// every detection is untracked; the engine then confirms whatever stays under
// the reticle. Requests carry the frame's encoded image bytes (JPEG or PNG).
package visionapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	gvision "cloud.google.com/go/vision/v2/apiv1"
	visionpb "cloud.google.com/go/vision/v2/apiv1/visionpb"
	"google.golang.org/api/option"

	"reticle/internal/config"
	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/services"
)

// annotateFunc is the subset of the image annotator client the detector uses.
type annotateFunc func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error)

// Options tunes the detector.
type Options struct {
	MaxResults int
	MinScore   float32
	Timeout    time.Duration
}

// Detector implements detection.Detector against Cloud Vision.
type Detector struct {
	annotate annotateFunc
	closer   io.Closer
	opts     Options
	logger   *slog.Logger
}

var _ detection.Detector = (*Detector)(nil)

// New creates a Cloud Vision client. Credentials come from Application
// Default Credentials unless a credentials file is configured.
func New(ctx context.Context, cfg config.Vision, logger *slog.Logger) (*Detector, error) {
	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := gvision.NewImageAnnotatorClient(ctx, clientOpts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "visionapi", "new client", "failed to create vision client", err)
	}
	annotate := func(ctx context.Context, req *visionpb.BatchAnnotateImagesRequest) (*visionpb.BatchAnnotateImagesResponse, error) {
		return client.BatchAnnotateImages(ctx, req)
	}
	return newDetector(annotate, client, Options{
		MaxResults: cfg.MaxResults,
		MinScore:   float32(cfg.MinScore),
		Timeout:    time.Duration(cfg.RequestTimeout) * time.Second,
	}, logger), nil
}

func newDetector(annotate annotateFunc, closer io.Closer, opts Options, logger *slog.Logger) *Detector {
	if opts.MaxResults <= 0 {
		opts.MaxResults = 10
	}
	return &Detector{
		annotate: annotate,
		closer:   closer,
		opts:     opts,
		logger:   logging.NewComponentLogger(logger, "visionapi"),
	}
}

// Detect sends the frame image for object localization and returns the
// objects in upright frame coordinates, highest score first as the API orders them.
func (d *Detector) Detect(ctx context.Context, frame *detection.Frame) ([]detection.Item, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}
	if len(frame.Data) == 0 {
		return nil, fmt.Errorf("frame %d has no image data", frame.Seq)
	}
	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	req := &visionpb.BatchAnnotateImagesRequest{
		Requests: []*visionpb.AnnotateImageRequest{
			{
				Image: &visionpb.Image{Content: frame.Data},
				Features: []*visionpb.Feature{
					{Type: visionpb.Feature_OBJECT_LOCALIZATION, MaxResults: int32(d.opts.MaxResults)},
				},
			},
		},
	}

	resp, err := d.annotate(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("vision API request failed: %w", err)
	}
	if len(resp.GetResponses()) == 0 {
		return nil, nil
	}
	first := resp.GetResponses()[0]
	if first.GetError() != nil {
		return nil, fmt.Errorf("vision API error: %s", first.GetError().GetMessage())
	}

	objects := first.GetLocalizedObjectAnnotations()
	items := make([]detection.Item, 0, len(objects))
	for _, obj := range objects {
		if obj.GetScore() < d.opts.MinScore {
			continue
		}
		box, ok := boundingBox(obj.GetBoundingPoly(), frame)
		if !ok {
			continue
		}
		items = append(items, detection.Item{
			Box:        box,
			Category:   categorize(obj.GetName()),
			Label:      obj.GetName(),
			Confidence: obj.GetScore(),
		})
	}
	d.logger.Debug("objects localized",
		logging.Uint64(logging.FieldFrameSeq, frame.Seq),
		logging.Int("returned", len(objects)),
		logging.Int("kept", len(items)),
	)
	return items, nil
}

// Close releases the client.
func (d *Detector) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// boundingBox converts a normalized polygon in raw image space to an
// upright-frame rectangle.
func boundingBox(poly *visionpb.BoundingPoly, frame *detection.Frame) (detection.Rect, bool) {
	vertices := poly.GetNormalizedVertices()
	if len(vertices) == 0 {
		return detection.Rect{}, false
	}
	minX, minY := 1.0, 1.0
	maxX, maxY := 0.0, 0.0
	for _, v := range vertices {
		x, y := frame.Rotation.UprightPoint(
			float64(min(max(v.GetX(), 0), 1)),
			float64(min(max(v.GetY(), 0), 1)),
		)
		minX, maxX = min(minX, x), max(maxX, x)
		minY, maxY = min(minY, y), max(maxY, y)
	}
	if maxX <= minX || maxY <= minY {
		return detection.Rect{}, false
	}
	uw, uh := frame.UprightSize()
	w, h := float64(uw), float64(uh)
	return detection.Rect{
		Left:   minX * w,
		Top:    minY * h,
		Right:  maxX * w,
		Bottom: maxY * h,
	}, true
}
