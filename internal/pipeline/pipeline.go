// Package pipeline feeds camera frames to a detector with single-flight
// backpressure.
//
// Submit never blocks. While a detection is outstanding every new frame is
// dropped rather than queued, so the engine always works on the freshest frame
// it can afford. Detection outcomes are posted onto the session event loop and
// the pipeline stays busy until the handler has returned, so handlers never
// overlap each other or a new detection.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/services"
)

// Handler consumes detection outcomes on the serialized context.
type Handler interface {
	HandleResult(frame *detection.Frame, items []detection.Item)
	HandleFailure(frame *detection.Frame, err error)
}

// Poster runs closures on the serialized processing context.
type Poster interface {
	Post(fn func()) bool
}

// Stats reports pipeline activity. Dropped includes frames rejected as out of order.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Stale     uint64 `json:"stale"`
	LastSeq   uint64 `json:"last_seq"`
}

// Pipeline owns one detector for the lifetime of a camera session.
type Pipeline struct {
	detector detection.Detector
	poster   Poster
	handler  Handler
	logger   *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	live      atomic.Bool
	busy      atomic.Bool
	closeOnce sync.Once

	seqMu   sync.Mutex
	lastSeq uint64
	seenSeq bool

	submitted atomic.Uint64
	dropped   atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	stale     atomic.Uint64
}

// New returns a live pipeline. The pipeline takes ownership of detector.
func New(detector detection.Detector, poster Poster, handler Handler, logger *slog.Logger) *Pipeline {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		detector: detector,
		poster:   poster,
		handler:  handler,
		logger:   logging.NewComponentLogger(logger, "pipeline"),
		ctx:      ctx,
		cancel:   cancel,
	}
	p.live.Store(true)
	return p
}

// Submit offers a frame to the detector. It returns false when the frame was
// dropped because a detection is outstanding, the frame is out of order, or
// the pipeline has stopped.
func (p *Pipeline) Submit(frame *detection.Frame) bool {
	if frame == nil || !p.live.Load() {
		return false
	}
	p.submitted.Add(1)

	p.seqMu.Lock()
	if p.seenSeq && frame.Seq <= p.lastSeq {
		last := p.lastSeq
		p.seqMu.Unlock()
		p.dropped.Add(1)
		p.logger.Debug("out of order frame rejected",
			logging.Uint64(logging.FieldFrameSeq, frame.Seq),
			logging.Uint64("last_seq", last),
		)
		return false
	}
	p.lastSeq = frame.Seq
	p.seenSeq = true
	p.seqMu.Unlock()

	if !p.busy.CompareAndSwap(false, true) {
		p.dropped.Add(1)
		return false
	}
	go p.detect(frame)
	return true
}

func (p *Pipeline) detect(frame *detection.Frame) {
	ctx := services.WithFrameSeq(p.ctx, frame.Seq)
	items, err := p.detector.Detect(ctx, frame)
	if !p.poster.Post(func() { p.complete(frame, items, err) }) {
		p.stale.Add(1)
		p.busy.Store(false)
	}
}

func (p *Pipeline) complete(frame *detection.Frame, items []detection.Item, err error) {
	defer p.busy.Store(false)
	if !p.live.Load() {
		p.stale.Add(1)
		return
	}
	if err != nil {
		p.failed.Add(1)
		if errors.Is(err, context.Canceled) {
			return
		}
		wrapped := services.Wrap(services.ErrDetection, "pipeline", "detect", "detector failed for frame", err)
		logging.WarnWithContext(p.logger, "detection failed; next frame retries", "detection_failed",
			logging.Uint64(logging.FieldFrameSeq, frame.Seq),
			logging.Error(wrapped),
			logging.String(logging.FieldErrorHint, "check detector backend connectivity and credentials"),
			logging.String(logging.FieldImpact, "frame skipped"),
		)
		p.handler.HandleFailure(frame, wrapped)
		return
	}
	p.processed.Add(1)
	p.handler.HandleResult(frame, items)
}

// Busy reports whether a detection is outstanding.
func (p *Pipeline) Busy() bool { return p.busy.Load() }

// Live reports whether the pipeline accepts frames.
func (p *Pipeline) Live() bool { return p.live.Load() }

// Stop clears the liveness flag, cancels the in-flight detection, and closes
// the detector exactly once. Outcomes arriving afterwards are ignored. It does
// not wait for in-flight work and is safe to call more than once.
func (p *Pipeline) Stop() {
	p.live.Store(false)
	p.cancel()
	p.closeOnce.Do(func() {
		if err := p.detector.Close(); err != nil {
			p.logger.Warn("detector close failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "detector_close_failed"),
				logging.String(logging.FieldErrorHint, "detector resources may need manual cleanup"),
				logging.String(logging.FieldImpact, "none for the next session"),
			)
		}
	})
}

// Stats returns a snapshot of pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.seqMu.Lock()
	last := p.lastSeq
	p.seqMu.Unlock()
	return Stats{
		Submitted: p.submitted.Load(),
		Dropped:   p.dropped.Load(),
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
		Stale:     p.stale.Load(),
		LastSeq:   last,
	}
}
