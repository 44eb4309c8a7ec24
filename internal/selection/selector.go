package selection

import (
	"fmt"

	"reticle/internal/detection"
	"reticle/internal/services"
)

// Rule decides whether an item qualifies as the frame's candidate.
type Rule int

const (
	// RuleProximity selects the first item whose overlay-space center lies
	// strictly closer than the threshold to the target point.
	RuleProximity Rule = iota
	// RuleReticleOverlap considers only the first item and selects it when its
	// box intersects the reticle square of half-side threshold.
	RuleReticleOverlap
	// RuleContainsCenter selects the first item whose box contains the target point.
	RuleContainsCenter
)

func (r Rule) String() string {
	switch r {
	case RuleProximity:
		return "proximity"
	case RuleReticleOverlap:
		return "reticle_overlap"
	case RuleContainsCenter:
		return "contains_center"
	default:
		return fmt.Sprintf("rule(%d)", int(r))
	}
}

// Selector maps a frame's detection list to at most one candidate.
type Selector struct {
	rule      Rule
	overlay   detection.Overlay
	threshold float64
	classify  bool
}

// NewSelector validates the geometry and returns a selector. When classify is
// true, items with an unknown category are ignored.
func NewSelector(rule Rule, overlay detection.Overlay, threshold float64, classify bool) (*Selector, error) {
	if threshold <= 0 && rule != RuleContainsCenter {
		return nil, services.Wrap(services.ErrConfiguration, "selection", "new selector", fmt.Sprintf("proximity threshold %v must be positive", threshold), nil)
	}
	if overlay.Width <= 0 || overlay.Height <= 0 {
		return nil, services.Wrap(services.ErrConfiguration, "selection", "new selector", fmt.Sprintf("overlay %dx%d must have positive size", overlay.Width, overlay.Height), nil)
	}
	return &Selector{rule: rule, overlay: overlay, threshold: threshold, classify: classify}, nil
}

// Overlay returns the geometry candidates are measured against.
func (s *Selector) Overlay() detection.Overlay { return s.overlay }

// Filter removes items that fail the classification predicate. The input
// slice is not modified.
func (s *Selector) Filter(items []detection.Item) []detection.Item {
	if !s.classify {
		return items
	}
	out := make([]detection.Item, 0, len(items))
	for _, item := range items {
		if item.Category.Known() {
			out = append(out, item)
		}
	}
	return out
}

// Select returns the candidate for frame, if any. The classification filter
// is applied first and the candidate's Index refers to the filtered list.
func (s *Selector) Select(frame *detection.Frame, items []detection.Item) (detection.Candidate, bool) {
	for idx, item := range s.Filter(items) {
		box := s.overlay.TranslateRect(frame, item.Box)
		if s.qualifies(box) {
			return detection.Candidate{Item: item, Index: idx, Frame: frame}, true
		}
		if s.rule == RuleReticleOverlap {
			break
		}
	}
	return detection.Candidate{}, false
}

func (s *Selector) qualifies(box detection.Rect) bool {
	switch s.rule {
	case RuleReticleOverlap:
		return box.Intersects(s.overlay.Reticle(s.threshold))
	case RuleContainsCenter:
		return box.Contains(s.overlay.Center())
	default:
		return s.overlay.DistanceToCenter(box) < s.threshold
	}
}

// SizeProgress reports how close a candidate is to the barcode size
// requirement: its overlay-space width over minWidthPercent of the overlay
// width, clamped to [0, 1].
func (s *Selector) SizeProgress(c detection.Candidate, minWidthPercent float64) float64 {
	return SizeProgress(s.overlay.TranslateRect(c.Frame, c.Item.Box), s.overlay, minWidthPercent)
}

// SizeProgress computes the barcode size progress for a box already in overlay coordinates.
func SizeProgress(box detection.Rect, overlay detection.Overlay, minWidthPercent float64) float64 {
	if minWidthPercent <= 0 {
		return 1
	}
	required := float64(overlay.Width) * minWidthPercent / 100
	if required <= 0 {
		return 1
	}
	return min(max(box.Width()/required, 0), 1)
}
