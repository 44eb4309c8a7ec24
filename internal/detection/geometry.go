package detection

import "math"

// Rect is an axis-aligned box. Detector boxes are in upright frame coordinates.
type Rect struct {
	Left   float64 `json:"left" toml:"left"`
	Top    float64 `json:"top" toml:"top"`
	Right  float64 `json:"right" toml:"right"`
	Bottom float64 `json:"bottom" toml:"bottom"`
}

func (r Rect) Width() float64  { return r.Right - r.Left }
func (r Rect) Height() float64 { return r.Bottom - r.Top }

// Center returns the midpoint of r.
func (r Rect) Center() (x, y float64) {
	return (r.Left + r.Right) / 2, (r.Top + r.Bottom) / 2
}

// Contains reports whether the point lies inside r, edges included.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.Left && x <= r.Right && y >= r.Top && y <= r.Bottom
}

// Intersects reports whether r and o overlap with a non-empty area.
func (r Rect) Intersects(o Rect) bool {
	return r.Left < o.Right && o.Left < r.Right && r.Top < o.Bottom && o.Top < r.Bottom
}

// Overlay is the visible preview surface. Its geometric center is the fixed
// target point candidates are measured against.
type Overlay struct {
	Width  int
	Height int
}

// Center returns the overlay's target point.
func (o Overlay) Center() (x, y float64) {
	return float64(o.Width) / 2, float64(o.Height) / 2
}

// TranslateRect maps a detector box from frame coordinates into overlay
// coordinates, scaling each axis independently. The frame's rotation decides
// which dimension is the upright width.
func (o Overlay) TranslateRect(frame *Frame, r Rect) Rect {
	fw, fh := frame.UprightSize()
	if fw <= 0 || fh <= 0 {
		return r
	}
	sx := float64(o.Width) / float64(fw)
	sy := float64(o.Height) / float64(fh)
	return Rect{
		Left:   r.Left * sx,
		Top:    r.Top * sy,
		Right:  r.Right * sx,
		Bottom: r.Bottom * sy,
	}
}

// Reticle returns the square of the given half-side centered on the target point.
func (o Overlay) Reticle(halfSide float64) Rect {
	cx, cy := o.Center()
	return Rect{Left: cx - halfSide, Top: cy - halfSide, Right: cx + halfSide, Bottom: cy + halfSide}
}

// DistanceToCenter returns the Euclidean distance from the center of r to the target point.
func (o Overlay) DistanceToCenter(r Rect) float64 {
	cx, cy := o.Center()
	x, y := r.Center()
	return math.Hypot(x-cx, y-cy)
}
