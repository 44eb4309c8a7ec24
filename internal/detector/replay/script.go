// Package replay implements a detector that plays back a scripted sequence of
// detection results. It backs the replay command, the default daemon backend
// on machines without a vision service, and end-to-end tests.
package replay

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"reticle/internal/detection"
	"reticle/internal/services"
)

// ItemSpec is one scripted detection.
type ItemSpec struct {
	// TrackingID is optional; zero means the item is untracked.
	TrackingID int64      `toml:"tracking_id"`
	Box        [4]float64 `toml:"box"`
	Value      string     `toml:"value"`
	Format     string     `toml:"format"`
	Category   string     `toml:"category"`
	Label      string     `toml:"label"`
	Confidence float32    `toml:"confidence"`
}

// Step repeats the same detection result for Repeat consecutive frames.
type Step struct {
	Repeat int        `toml:"repeat"`
	Fail   string     `toml:"fail"`
	Items  []ItemSpec `toml:"items"`
}

// Script describes a replayed camera session.
type Script struct {
	TickMs      int    `toml:"tick_ms"`
	LatencyMs   int    `toml:"latency_ms"`
	FrameWidth  int    `toml:"frame_width"`
	FrameHeight int    `toml:"frame_height"`
	Rotation    int    `toml:"rotation"`
	Loop        bool   `toml:"loop"`
	Steps       []Step `toml:"frames"`
}

// Frame is one expanded script frame.
type Frame struct {
	Items []detection.Item
	Err   error
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a script.
func Parse(data []byte) (*Script, error) {
	var script Script
	decoder := toml.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&script); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "replay", "parse", "invalid replay script", err)
	}
	script.normalize()
	if err := script.Validate(); err != nil {
		return nil, err
	}
	return &script, nil
}

func (s *Script) normalize() {
	if s.TickMs <= 0 {
		s.TickMs = 33
	}
	if s.FrameWidth <= 0 {
		s.FrameWidth = 1080
	}
	if s.FrameHeight <= 0 {
		s.FrameHeight = 1920
	}
	for i := range s.Steps {
		if s.Steps[i].Repeat <= 0 {
			s.Steps[i].Repeat = 1
		}
	}
}

// Validate checks the script for values the engine cannot use.
func (s *Script) Validate() error {
	if !detection.Rotation(s.Rotation).Valid() {
		return services.Wrap(services.ErrConfiguration, "replay", "validate", fmt.Sprintf("rotation %d must be 0, 90, 180 or 270", s.Rotation), nil)
	}
	if s.LatencyMs < 0 {
		return services.Wrap(services.ErrConfiguration, "replay", "validate", "latency_ms must be non-negative", nil)
	}
	if len(s.Steps) == 0 {
		return services.Wrap(services.ErrConfiguration, "replay", "validate", "script has no frames", nil)
	}
	for i, step := range s.Steps {
		for j, item := range step.Items {
			box := item.Box
			if box[2] < box[0] || box[3] < box[1] {
				return services.Wrap(services.ErrConfiguration, "replay", "validate", fmt.Sprintf("frames[%d].items[%d]: box right/bottom must not precede left/top", i, j), nil)
			}
			if item.Category != "" && !knownCategory(item.Category) {
				return services.Wrap(services.ErrConfiguration, "replay", "validate", fmt.Sprintf("frames[%d].items[%d]: unknown category %q", i, j, item.Category), nil)
			}
		}
	}
	return nil
}

// Tick returns the interval between frames.
func (s *Script) Tick() time.Duration {
	return time.Duration(s.TickMs) * time.Millisecond
}

// Latency returns the simulated detection latency.
func (s *Script) Latency() time.Duration {
	return time.Duration(s.LatencyMs) * time.Millisecond
}

// Len returns the number of frames in one pass of the script.
func (s *Script) Len() int {
	total := 0
	for _, step := range s.Steps {
		total += step.Repeat
	}
	return total
}

// Expand flattens the steps into one entry per frame.
func (s *Script) Expand() []Frame {
	frames := make([]Frame, 0, s.Len())
	for _, step := range s.Steps {
		var err error
		if msg := strings.TrimSpace(step.Fail); msg != "" {
			err = fmt.Errorf("scripted failure: %s", msg)
		}
		items := step.items()
		for range step.Repeat {
			frames = append(frames, Frame{Items: items, Err: err})
		}
	}
	return frames
}

func (st Step) items() []detection.Item {
	if len(st.Items) == 0 {
		return nil
	}
	out := make([]detection.Item, 0, len(st.Items))
	for _, entry := range st.Items {
		item := detection.Item{
			Box:        detection.Rect{Left: entry.Box[0], Top: entry.Box[1], Right: entry.Box[2], Bottom: entry.Box[3]},
			Value:      entry.Value,
			Format:     entry.Format,
			Category:   detection.Category(strings.ToLower(strings.TrimSpace(entry.Category))),
			Label:      entry.Label,
			Confidence: entry.Confidence,
		}
		if entry.TrackingID != 0 {
			item.TrackingID = detection.Tracked(entry.TrackingID)
		}
		if item.Category == "" {
			item.Category = detection.CategoryUnknown
		}
		out = append(out, item)
	}
	return out
}

func knownCategory(value string) bool {
	switch detection.Category(strings.ToLower(strings.TrimSpace(value))) {
	case detection.CategoryUnknown, detection.CategoryHomeGood, detection.CategoryFashionGood,
		detection.CategoryFood, detection.CategoryPlace, detection.CategoryPlant:
		return true
	}
	return false
}
