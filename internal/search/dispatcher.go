package search

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"reticle/internal/detection"
	"reticle/internal/logging"
	"reticle/internal/services"
)

// Stats reports dispatcher activity.
type Stats struct {
	Started   uint64 `json:"started"`
	Delivered uint64 `json:"delivered"`
	Failed    uint64 `json:"failed"`
	Stale     uint64 `json:"stale"`
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) {
		if d > 0 {
			disp.timeout = d
		}
	}
}

// WithLogger sets the dispatcher logger.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		disp.logger = logging.NewComponentLogger(logger, "search")
	}
}

// Dispatcher runs single-flight, cancellable lookups.
type Dispatcher struct {
	backend  Backend
	poster   Poster
	listener Listener
	timeout  time.Duration
	logger   *slog.Logger

	mu         sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	closed     bool

	started   atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	stale     atomic.Uint64
}

// NewDispatcher wires a backend to a listener. Outcomes are posted through poster.
func NewDispatcher(backend Backend, poster Poster, listener Listener, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		backend:  backend,
		poster:   poster,
		listener: listener,
		logger:   logging.NewComponentLogger(nil, "search"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Search starts a lookup for entity, invalidating and cancelling any
// outstanding job. After Shutdown it returns a job that is not Live.
func (d *Dispatcher) Search(entity detection.Candidate) Job {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return Job{Entity: entity}
	}
	d.generation++
	if d.cancel != nil {
		d.cancel()
	}
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), d.timeout)
	} else {
		ctx, cancel = context.WithCancel(context.Background())
	}
	d.cancel = cancel
	job := Job{Entity: entity, Generation: d.generation}
	d.mu.Unlock()

	d.started.Add(1)
	d.logger.Debug("search dispatched",
		logging.Uint64("generation", job.Generation),
		logging.String("lookup_key", entity.LookupKey()),
	)
	go d.run(ctx, cancel, job)
	return job
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, job Job) {
	products, err := d.backend.Lookup(ctx, job.Entity)
	cancel()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = errors.Join(services.ErrTimeout, err)
		}
		err = services.Wrap(services.ErrSearch, "search", "lookup", "backend lookup failed", err)
	}
	outcome := Result{Job: job, Products: products, Err: err}
	if !d.poster.Post(func() { d.deliver(outcome) }) {
		d.stale.Add(1)
	}
}

func (d *Dispatcher) deliver(res Result) {
	d.mu.Lock()
	current := !d.closed && res.Job.Generation == d.generation
	d.mu.Unlock()
	if !current {
		d.stale.Add(1)
		d.logger.Debug("stale search result discarded",
			logging.Uint64("generation", res.Job.Generation),
			logging.String(logging.FieldEventType, "search_stale"),
		)
		return
	}
	if res.Err != nil {
		d.failed.Add(1)
	} else {
		d.delivered.Add(1)
	}
	if d.listener != nil {
		d.listener(res)
	}
}

// Cancel invalidates and cancels the outstanding job, if any.
func (d *Dispatcher) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.invalidateLocked()
}

// Shutdown invalidates outstanding work and rejects future searches. It does
// not wait for in-flight lookups. Safe to call more than once.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	d.invalidateLocked()
}

func (d *Dispatcher) invalidateLocked() {
	d.generation++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Generation returns the current generation.
func (d *Dispatcher) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}

// Stats returns a snapshot of dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Started:   d.started.Load(),
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Stale:     d.stale.Load(),
	}
}
