package detection

import (
	"fmt"
	"time"
)

// Rotation is the clockwise rotation in degrees needed to display a frame upright.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the supported right-angle rotations.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Swapped reports whether the rotation exchanges width and height.
func (r Rotation) Swapped() bool {
	return r == Rotate90 || r == Rotate270
}

// Frame is one camera image plus its sequence and orientation metadata.
// Callers must not mutate a Frame after it has been submitted.
type Frame struct {
	Seq        uint64
	Width      int
	Height     int
	Rotation   Rotation
	Format     string
	Data       []byte
	CapturedAt time.Time
}

// Validate checks the frame metadata the engine relies on.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("frame is nil")
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("frame %d: invalid dimensions %dx%d", f.Seq, f.Width, f.Height)
	}
	if !f.Rotation.Valid() {
		return fmt.Errorf("frame %d: unsupported rotation %d", f.Seq, f.Rotation)
	}
	return nil
}

// UprightSize returns the frame dimensions after applying its rotation.
func (f *Frame) UprightSize() (width, height int) {
	if f.Rotation.Swapped() {
		return f.Height, f.Width
	}
	return f.Width, f.Height
}

// UprightPoint maps a normalized point in the raw image into normalized
// upright coordinates by rotating it clockwise by r.
func (r Rotation) UprightPoint(x, y float64) (float64, float64) {
	switch r {
	case Rotate90:
		return 1 - y, x
	case Rotate180:
		return 1 - x, 1 - y
	case Rotate270:
		return y, 1 - x
	default:
		return x, y
	}
}
