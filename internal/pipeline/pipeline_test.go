package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reticle/internal/detection"
	"reticle/internal/eventloop"
	"reticle/internal/logging"
	"reticle/internal/pipeline"
	"reticle/internal/services"
)

type stubDetector struct {
	mu       sync.Mutex
	release  chan struct{}
	active   int32
	peak     int32
	calls    int
	closes   atomic.Int32
	err      error
	blockAll bool
}

func (d *stubDetector) Detect(ctx context.Context, frame *detection.Frame) ([]detection.Item, error) {
	n := atomic.AddInt32(&d.active, 1)
	defer atomic.AddInt32(&d.active, -1)
	d.mu.Lock()
	d.calls++
	if n > d.peak {
		d.peak = n
	}
	release := d.release
	d.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			if d.blockAll {
				<-release
			}
		}
	}
	if d.err != nil {
		return nil, d.err
	}
	return []detection.Item{{Value: "item"}}, nil
}

func (d *stubDetector) Close() error {
	d.closes.Add(1)
	return nil
}

type recordingHandler struct {
	mu       sync.Mutex
	results  []uint64
	failures []error
	inside   atomic.Int32
	overlap  atomic.Bool
	done     chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 64)}
}

func (h *recordingHandler) enter() {
	if h.inside.Add(1) > 1 {
		h.overlap.Store(true)
	}
}

func (h *recordingHandler) HandleResult(frame *detection.Frame, _ []detection.Item) {
	h.enter()
	defer h.inside.Add(-1)
	h.mu.Lock()
	h.results = append(h.results, frame.Seq)
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHandler) HandleFailure(_ *detection.Frame, err error) {
	h.enter()
	defer h.inside.Add(-1)
	h.mu.Lock()
	h.failures = append(h.failures, err)
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHandler) wait(t *testing.T) {
	t.Helper()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for handler")
	}
}

func frame(seq uint64) *detection.Frame {
	return &detection.Frame{Seq: seq, Width: 640, Height: 480}
}

// settle waits until the loop has drained and the pipeline is idle.
func settle(t *testing.T, loop *eventloop.Loop, p *pipeline.Pipeline) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for p.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("pipeline stayed busy")
		}
		_ = loop.Call(context.Background(), func() error { return nil })
		time.Sleep(time.Millisecond)
	}
}

func TestSubmitDropsWhileBusy(t *testing.T) {
	loop := eventloop.New(logging.NewNop(), 8)
	defer loop.Stop()
	det := &stubDetector{release: make(chan struct{})}
	handler := newRecordingHandler()
	p := pipeline.New(det, loop, handler, logging.NewNop())
	defer p.Stop()

	if !p.Submit(frame(1)) {
		t.Fatal("first frame must be accepted")
	}
	for seq := uint64(2); seq <= 5; seq++ {
		if p.Submit(frame(seq)) {
			t.Fatalf("frame %d must be dropped while busy", seq)
		}
	}
	close(det.release)
	handler.wait(t)
	settle(t, loop, p)

	if !p.Submit(frame(6)) {
		t.Fatal("pipeline must accept frames once idle")
	}
	handler.wait(t)

	st := p.Stats()
	if st.Submitted != 6 || st.Dropped != 4 || st.Processed != 2 || st.LastSeq != 6 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestNeverMoreThanOneOutstandingDetection(t *testing.T) {
	loop := eventloop.New(logging.NewNop(), 8)
	defer loop.Stop()
	det := &stubDetector{}
	handler := newRecordingHandler()
	handler.done = make(chan struct{}, 4096)
	p := pipeline.New(det, loop, handler, logging.NewNop())
	defer p.Stop()

	for seq := uint64(1); seq <= 2000; seq++ {
		p.Submit(frame(seq))
	}
	settle(t, loop, p)

	det.mu.Lock()
	peak := det.peak
	det.mu.Unlock()
	if peak != 1 {
		t.Fatalf("expected at most one outstanding detection, saw %d", peak)
	}
	if handler.overlap.Load() {
		t.Fatal("handlers overlapped")
	}
	st := p.Stats()
	if st.Processed+st.Dropped != st.Submitted {
		t.Fatalf("every frame must be processed or dropped: %+v", st)
	}
}

func TestOutOfOrderFramesRejected(t *testing.T) {
	loop := eventloop.New(logging.NewNop(), 8)
	defer loop.Stop()
	handler := newRecordingHandler()
	p := pipeline.New(&stubDetector{}, loop, handler, logging.NewNop())
	defer p.Stop()

	p.Submit(frame(5))
	handler.wait(t)
	settle(t, loop, p)

	if p.Submit(frame(5)) || p.Submit(frame(3)) {
		t.Fatal("frames with non-increasing sequence must be rejected")
	}
	if st := p.Stats(); st.Dropped != 2 || st.LastSeq != 5 {
		t.Fatalf("unexpected stats: %+v", st)
	}
}

func TestFailureClearsBusyWithoutRetry(t *testing.T) {
	loop := eventloop.New(logging.NewNop(), 8)
	defer loop.Stop()
	det := &stubDetector{err: errors.New("model unavailable")}
	handler := newRecordingHandler()
	p := pipeline.New(det, loop, handler, logging.NewNop())
	defer p.Stop()

	p.Submit(frame(1))
	handler.wait(t)
	settle(t, loop, p)

	handler.mu.Lock()
	failures := append([]error(nil), handler.failures...)
	handler.mu.Unlock()
	if len(failures) != 1 || !errors.Is(failures[0], services.ErrDetection) {
		t.Fatalf("expected one detection failure, got %v", failures)
	}
	det.mu.Lock()
	calls := det.calls
	det.mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected no retry, got %d detector calls", calls)
	}
	if !p.Submit(frame(2)) {
		t.Fatal("next frame must be accepted after a failure")
	}
}

func TestStopMakesLateResultsNoOps(t *testing.T) {
	loop := eventloop.New(logging.NewNop(), 8)
	defer loop.Stop()
	det := &stubDetector{release: make(chan struct{}), blockAll: true}
	handler := newRecordingHandler()
	p := pipeline.New(det, loop, handler, logging.NewNop())

	p.Submit(frame(1))
	p.Stop()
	p.Stop()
	close(det.release)
	settle(t, loop, p)

	handler.mu.Lock()
	delivered := len(handler.results) + len(handler.failures)
	handler.mu.Unlock()
	if delivered != 0 {
		t.Fatalf("expected no handler calls after stop, got %d", delivered)
	}
	if det.closes.Load() != 1 {
		t.Fatalf("expected detector closed exactly once, got %d", det.closes.Load())
	}
	if p.Submit(frame(2)) {
		t.Fatal("stopped pipeline must reject frames")
	}
	if st := p.Stats(); st.Stale != 1 {
		t.Fatalf("expected one stale outcome, got %+v", st)
	}
}
