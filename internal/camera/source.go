package camera

import (
	"context"
	"sync/atomic"
	"time"

	"reticle/internal/detection"
	"reticle/internal/detector/replay"
)

// Sink accepts frames without blocking.
type Sink interface {
	Submit(frame *detection.Frame) bool
}

// Source produces frames until its input ends or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, sink Sink) error
}

// SourceStats reports what a source emitted.
type SourceStats struct {
	Emitted  uint64 `json:"emitted"`
	Accepted uint64 `json:"accepted"`
}

// ScriptSource emits blank frames at the script's tick so a replay detector
// can answer them by sequence number.
type ScriptSource struct {
	script *replay.Script
	now    func() time.Time

	emitted  atomic.Uint64
	accepted atomic.Uint64
}

// NewScriptSource returns a source that plays script once, or forever when
// the script loops.
func NewScriptSource(script *replay.Script) *ScriptSource {
	return &ScriptSource{script: script, now: time.Now}
}

// Run emits frames on a ticker. It returns nil when the script ends and
// ctx.Err() when cancelled.
func (s *ScriptSource) Run(ctx context.Context, sink Sink) error {
	total := uint64(s.script.Len())
	ticker := time.NewTicker(s.script.Tick())
	defer ticker.Stop()

	for seq := uint64(1); s.script.Loop || seq <= total; seq++ {
		frame := &detection.Frame{
			Seq:        seq,
			Width:      s.script.FrameWidth,
			Height:     s.script.FrameHeight,
			Rotation:   detection.Rotation(s.script.Rotation),
			Format:     "none",
			CapturedAt: s.now(),
		}
		s.emitted.Add(1)
		if sink.Submit(frame) {
			s.accepted.Add(1)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Stats returns emission counters.
func (s *ScriptSource) Stats() SourceStats {
	return SourceStats{Emitted: s.emitted.Load(), Accepted: s.accepted.Load()}
}
