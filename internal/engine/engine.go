package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"reticle/internal/confirm"
	"reticle/internal/detection"
	"reticle/internal/eventloop"
	"reticle/internal/logging"
	"reticle/internal/notifications"
	"reticle/internal/pipeline"
	"reticle/internal/search"
	"reticle/internal/selection"
	"reticle/internal/services"
	"reticle/internal/workflow"
)

const (
	defaultLoopBuffer = 64
	stopTimeout       = 5 * time.Second
	notifyTimeout     = 15 * time.Second
)

// Engine runs one camera session.
type Engine struct {
	opts      Options
	sessionID string
	logger    *slog.Logger
	now       func() time.Time
	notifier  notifications.Service

	loop       *eventloop.Loop
	pipeline   *pipeline.Pipeline
	dispatcher *search.Dispatcher
	machine    *workflow.StateMachine

	// Owned by the loop.
	selector  *selection.Selector
	registry  *selection.Registry
	confirm   *confirm.Controller
	confirmed *detection.Candidate

	started   atomic.Bool
	stopOnce  sync.Once
	progress  atomic.Uint64
	tracked   atomic.Int64
	entrances atomic.Uint64
	discarded atomic.Uint64

	mu        sync.Mutex
	lastError error
}

// New builds a session around detector and backend. The engine takes
// ownership of detector only when New succeeds.
func New(detector detection.Detector, backend search.Backend, opts Options, logger *slog.Logger, extra ...Option) (*Engine, error) {
	if detector == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "detector is required", nil)
	}
	if backend == nil {
		return nil, services.Wrap(services.ErrConfiguration, "engine", "new", "search backend is required", nil)
	}
	mode, err := ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts.Mode = mode
	if mode == ModeBarcode {
		opts.AutoSearch = true
	}

	e := &Engine{
		opts:      opts,
		sessionID: uuid.NewString(),
		now:       time.Now,
		notifier:  notifications.NewService(nil),
	}
	for _, opt := range extra {
		opt(e)
	}

	if logger == nil {
		logger = logging.NewNop()
	}
	base := logger.With(logging.String(logging.FieldSessionID, e.sessionID))
	e.logger = logging.NewComponentLogger(base, "engine").With(logging.String("mode", string(mode)))

	classify := opts.Classification && mode != ModeBarcode
	e.selector, err = selection.NewSelector(mode.Rule(), opts.Overlay, opts.SelectionDistance, classify)
	if err != nil {
		return nil, err
	}
	e.confirm, err = confirm.New(opts.ConfirmationWindow,
		confirm.WithClock(e.now),
		confirm.WithGraceFrames(opts.GraceFrames),
	)
	if err != nil {
		return nil, err
	}
	e.registry = selection.NewRegistry()
	if e.machine == nil {
		e.machine = workflow.New(base, workflow.WithClock(e.now))
	}

	buffer := opts.LoopBuffer
	if buffer <= 0 {
		buffer = defaultLoopBuffer
	}
	e.loop = eventloop.New(base, buffer)
	e.dispatcher = search.NewDispatcher(backend, e.loop, e.onSearchResult,
		search.WithTimeout(opts.SearchTimeout),
		search.WithLogger(base),
	)
	e.pipeline = pipeline.New(detector, e.loop, resultHandler{e}, base)
	return e, nil
}

// SessionID returns the session identifier attached to every log line.
func (e *Engine) SessionID() string { return e.sessionID }

// Mode returns the session mode.
func (e *Engine) Mode() Mode { return e.opts.Mode }

// Machine returns the workflow state machine observed by the UI.
func (e *Engine) Machine() *workflow.StateMachine { return e.machine }

// State returns the current workflow state.
func (e *Engine) State() workflow.State { return e.machine.State() }

// Start moves the session to DETECTING. Frames submitted before Start are
// detected but their results are ignored.
func (e *Engine) Start(ctx context.Context) error {
	err := e.loop.Call(ctx, func() error {
		if e.started.Load() {
			return services.Wrap(services.ErrInvalidOperation, "engine", "start", "session already started", nil)
		}
		if _, err := e.machine.Set(workflow.Detecting, "session started"); err != nil {
			return services.Wrap(services.ErrInvalidOperation, "engine", "start", "state machine not idle", err)
		}
		e.started.Store(true)
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info("session started",
		logging.String(logging.FieldEventType, "session_started"),
		logging.Bool("auto_search", e.opts.AutoSearch),
		logging.Duration("confirmation_window", e.opts.ConfirmationWindow),
	)
	return nil
}

// Submit offers a frame to the session. It never blocks and returns false
// when the frame was dropped.
func (e *Engine) Submit(frame *detection.Frame) bool {
	return e.pipeline.Submit(frame)
}

// Stop tears the session down: the detector is closed, outstanding searches
// are invalidated and the workflow returns to NOT_STARTED. Safe to call more
// than once.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		e.pipeline.Stop()
		e.dispatcher.Shutdown()

		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		err := e.loop.Call(ctx, func() error {
			e.resetSession()
			_, err := e.machine.Set(workflow.NotStarted, "session stopped")
			return err
		})
		if err != nil {
			e.logger.Warn("session stop incomplete", logging.Error(err))
		}
		e.started.Store(false)
		e.loop.Stop()
		e.logger.Info("session stopped",
			logging.String(logging.FieldEventType, "session_stopped"),
		)
	})
}

// RequestSearch dispatches the lookup for the confirmed candidate. It is
// valid only in CONFIRMED.
func (e *Engine) RequestSearch(ctx context.Context) error {
	return e.loop.Call(ctx, func() error {
		state := e.machine.State()
		if state != workflow.Confirmed || e.confirmed == nil {
			return invalidOperation("search", state)
		}
		e.dispatch(*e.confirmed, "search requested")
		return nil
	})
}

// Dismiss closes the displayed result and resumes detection. It is valid
// only in SEARCHED.
func (e *Engine) Dismiss(ctx context.Context) error {
	return e.loop.Call(ctx, func() error {
		state := e.machine.State()
		if state != workflow.Searched {
			return invalidOperation("dismiss", state)
		}
		return e.resume("result dismissed")
	})
}

// Resume abandons whatever the session was doing and returns to DETECTING.
func (e *Engine) Resume(ctx context.Context) error {
	return e.loop.Call(ctx, func() error {
		return e.resume("detection resumed")
	})
}

func (e *Engine) resume(reason string) error {
	e.dispatcher.Cancel()
	e.resetSession()
	e.machine.ClearEntity()
	if _, err := e.machine.Set(workflow.Detecting, reason); err != nil {
		return services.Wrap(services.ErrInvalidOperation, "engine", "resume", reason, err)
	}
	e.started.Store(true)
	return nil
}

// resetSession clears per-candidate state. Loop only.
func (e *Engine) resetSession() {
	e.confirm.Reset()
	e.registry.Clear()
	e.confirmed = nil
	e.publishProgress()
}

func (e *Engine) publishProgress() {
	e.progress.Store(math.Float64bits(e.confirm.Progress()))
	e.tracked.Store(int64(e.registry.Len()))
}

func (e *Engine) setLastError(err error) {
	e.mu.Lock()
	e.lastError = err
	e.mu.Unlock()
}

func (e *Engine) notify(event notifications.Event, payload notifications.Payload) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := e.notifier.Publish(ctx, event, payload); err != nil {
			logging.WarnWithContext(e.logger, "notification failed", "notification_failed",
				logging.String("event", string(event)),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
				logging.String(logging.FieldImpact, "push notification not delivered"),
			)
		}
	}()
}

func invalidOperation(op string, state workflow.State) error {
	return services.Wrap(services.ErrInvalidOperation, "engine", op, fmt.Sprintf("not allowed in %s", state), nil)
}
