// Package eventloop provides the serialized processing context that owns all
// mutable session state. Detection outcomes, search outcomes, and external
// operations are posted as closures and run one at a time on a single
// goroutine, so the state they touch needs no locks.
package eventloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"reticle/internal/logging"
)

// ErrStopped is returned when work is posted to a stopped loop.
var ErrStopped = errors.New("event loop stopped")

const defaultBuffer = 64

// Loop runs posted closures sequentially on one goroutine.
type Loop struct {
	queue    chan func()
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

// New starts a loop with the given queue buffer.
func New(logger *slog.Logger, buffer int) *Loop {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	l := &Loop{
		queue:  make(chan func(), buffer),
		done:   make(chan struct{}),
		exited: make(chan struct{}),
		logger: logging.NewComponentLogger(logger, "eventloop"),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.exited)
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logging.ErrorWithContext(l.logger, "event loop closure panicked", "eventloop_panic",
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "report the stack trace; the session keeps running"),
			)
		}
	}()
	fn()
}

// Post enqueues fn. It blocks only while the buffer is full and returns false
// once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Call runs fn on the loop and waits for its result. fn is skipped when ctx
// has ended by the time the loop reaches it; once fn has started it runs to
// completion even if the caller stops waiting. It must not be invoked from
// inside a loop closure.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	posted := l.Post(func() {
		if err := ctx.Err(); err != nil {
			result <- err
			return
		}
		result <- fn()
	})
	if !posted {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		select {
		case err := <-result:
			return err
		default:
			return ErrStopped
		}
	}
}

// Stop halts the loop without running queued closures. It is idempotent and
// does not wait for the closure currently executing.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the loop goroutine has exited or ctx ends.
func (l *Loop) Wait(ctx context.Context) error {
	select {
	case <-l.exited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
