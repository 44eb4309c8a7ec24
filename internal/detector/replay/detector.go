package replay

import (
	"context"
	"sync"
	"time"

	"reticle/internal/detection"
)

// Detector returns the scripted result for each frame sequence. Frame 1 maps
// to the first scripted frame. Past the end of the script it reports nothing,
// or wraps around when the script loops.
type Detector struct {
	frames  []Frame
	loop    bool
	latency time.Duration

	mu     sync.Mutex
	closed bool
	calls  int
}

// New builds a detector for script.
func New(script *Script) *Detector {
	return &Detector{
		frames:  script.Expand(),
		loop:    script.Loop,
		latency: script.Latency(),
	}
}

// Detect implements detection.Detector.
func (d *Detector) Detect(ctx context.Context, frame *detection.Frame) ([]detection.Item, error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, context.Canceled
	}
	d.calls++
	d.mu.Unlock()

	if d.latency > 0 {
		timer := time.NewTimer(d.latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	entry, ok := d.lookup(frame.Seq)
	if !ok {
		return nil, nil
	}
	if entry.Err != nil {
		return nil, entry.Err
	}
	out := make([]detection.Item, len(entry.Items))
	copy(out, entry.Items)
	return out, nil
}

func (d *Detector) lookup(seq uint64) (Frame, bool) {
	if seq == 0 || len(d.frames) == 0 {
		return Frame{}, false
	}
	idx := int((seq - 1) % uint64(len(d.frames)))
	if !d.loop && seq > uint64(len(d.frames)) {
		return Frame{}, false
	}
	return d.frames[idx], true
}

// Calls returns how many detections were requested.
func (d *Detector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Close implements detection.Detector.
func (d *Detector) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}
