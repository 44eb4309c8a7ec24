// Package detection defines the data exchanged between camera sources,
// detectors, and the session engine: frames, detected items, tracking
// identities, candidates, and the overlay geometry used to map detector
// coordinates onto the visible preview.
//
// Frames are immutable once submitted. They are shared by pointer between the
// in-flight detection, the selected candidate, and any confirmed entity.
package detection
