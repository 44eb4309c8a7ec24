package detection

import (
	"context"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Identity is a detector-assigned tracking id. The zero value is an absent
// identity; two absent identities compare equal so single-shot detectors keep
// confirming whatever sits at the target point. Key distinguishes untracked
// entities that carry their own content, such as barcodes.
type Identity struct {
	ID    int64
	Valid bool
	Key   string
}

// Tracked returns a present identity for id.
func Tracked(id int64) Identity {
	return Identity{ID: id, Valid: true}
}

func (i Identity) String() string {
	if !i.Valid && i.Key != "" {
		return i.Key
	}
	if !i.Valid {
		return "untracked"
	}
	return strconv.FormatInt(i.ID, 10)
}

// Category is the coarse classification attached to an object detection.
type Category string

const (
	CategoryUnknown     Category = "unknown"
	CategoryHomeGood    Category = "home_good"
	CategoryFashionGood Category = "fashion_good"
	CategoryFood        Category = "food"
	CategoryPlace       Category = "place"
	CategoryPlant       Category = "plant"
)

// DisplayName returns a human readable category label.
func (c Category) DisplayName() string {
	if c == "" {
		c = CategoryUnknown
	}
	return cases.Title(language.English).String(strings.ReplaceAll(string(c), "_", " "))
}

// Known reports whether c passes the classification filter.
func (c Category) Known() bool {
	return c != "" && c != CategoryUnknown
}

// Item is one detected entity within a frame.
type Item struct {
	Box        Rect     `json:"box"`
	TrackingID Identity `json:"-"`
	// Value is the decoded payload for barcodes.
	Value string `json:"value,omitempty"`
	// Format is the barcode symbology.
	Format     string   `json:"format,omitempty"`
	Category   Category `json:"category,omitempty"`
	Label      string   `json:"label,omitempty"`
	Confidence float32  `json:"confidence,omitempty"`
}

// Candidate is the single item chosen for a frame.
type Candidate struct {
	Item  Item
	Index int
	Frame *Frame
}

// Identity returns the candidate's tracking identity. Untracked barcodes are
// identified by their decoded value.
func (c Candidate) Identity() Identity {
	if c.Item.TrackingID.Valid {
		return c.Item.TrackingID
	}
	if v := strings.TrimSpace(c.Item.Value); v != "" {
		return Identity{Key: "barcode:" + v}
	}
	return c.Item.TrackingID
}

// LookupKey returns a stable key for caching lookups of this entity, or the
// empty string when the entity has no reusable key.
func (c Candidate) LookupKey() string {
	if v := strings.TrimSpace(c.Item.Value); v != "" {
		return "barcode:" + v
	}
	if l := strings.TrimSpace(c.Item.Label); l != "" {
		return "object:" + strings.ToLower(l)
	}
	return ""
}

// Detector produces detections for a frame. Implementations are invoked by at
// most one goroutine at a time and are closed exactly once by their owner.
type Detector interface {
	Detect(ctx context.Context, frame *Frame) ([]Item, error)
	Close() error
}
