package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"reticle/internal/logging"
)

const defaultHistory = 64

// Transition records one applied state change.
type Transition struct {
	Version uint64    `json:"version"`
	From    State     `json:"from"`
	To      State     `json:"to"`
	At      time.Time `json:"at"`
	Reason  string    `json:"reason,omitempty"`
}

// Snapshot is a consistent view of the published state.
type Snapshot struct {
	State   State     `json:"state"`
	Version uint64    `json:"version"`
	Since   time.Time `json:"since"`
}

// Option customizes a StateMachine.
type Option func(*StateMachine)

// WithClock injects the time source used to stamp transitions.
func WithClock(now func() time.Time) Option {
	return func(m *StateMachine) {
		if now != nil {
			m.now = now
		}
	}
}

// WithHistory bounds the number of transitions retained.
func WithHistory(n int) Option {
	return func(m *StateMachine) {
		if n > 0 {
			m.historyCap = n
		}
	}
}

// StateMachine is the single source of truth for the workflow state.
type StateMachine struct {
	logger *slog.Logger
	now    func() time.Time

	current atomic.Int32

	mu         sync.Mutex
	snapshot   Snapshot
	changed    chan struct{}
	history    []Transition
	historyCap int
	subs       map[*Subscription]struct{}
	lastEntity *Entity
}

// New returns a machine in NotStarted.
func New(logger *slog.Logger, opts ...Option) *StateMachine {
	m := &StateMachine{
		logger:     logging.NewComponentLogger(logger, "workflow"),
		now:        time.Now,
		historyCap: defaultHistory,
		changed:    make(chan struct{}),
		subs:       make(map[*Subscription]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snapshot = Snapshot{State: NotStarted, Since: m.now()}
	return m
}

// State returns the current state. Safe for concurrent use.
func (m *StateMachine) State() State {
	return State(m.current.Load())
}

// Snapshot returns the current state with its version.
func (m *StateMachine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// Set applies a transition to to. Setting the current state is a no-op that
// returns false. Transitions outside the table return ErrInvalidTransition.
func (m *StateMachine) Set(to State, reason string) (bool, error) {
	m.mu.Lock()
	from := m.snapshot.State
	if from == to {
		m.mu.Unlock()
		return false, nil
	}
	if !CanTransition(from, to) {
		m.mu.Unlock()
		m.logger.Debug("transition rejected",
			logging.String("from", from.String()),
			logging.String("to", to.String()),
			logging.String("reason", reason),
		)
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	at := m.now()
	tr := Transition{Version: m.snapshot.Version + 1, From: from, To: to, At: at, Reason: reason}
	m.snapshot = Snapshot{State: to, Version: tr.Version, Since: at}
	m.current.Store(int32(to))
	m.history = append(m.history, tr)
	if over := len(m.history) - m.historyCap; over > 0 {
		m.history = append(m.history[:0], m.history[over:]...)
	}
	close(m.changed)
	m.changed = make(chan struct{})
	for sub := range m.subs {
		offer(sub.states, to)
	}
	m.mu.Unlock()

	m.logger.Info("workflow state changed",
		logging.String("from", from.String()),
		logging.String(logging.FieldState, to.String()),
		logging.String("reason", reason),
		logging.Uint64("version", tr.Version),
	)
	return true, nil
}

// History returns the retained transitions, oldest first.
func (m *StateMachine) History() []Transition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Transition, len(m.history))
	copy(out, m.history)
	return out
}

// Wait blocks until the state version exceeds since or ctx ends, then returns
// the current snapshot.
func (m *StateMachine) Wait(ctx context.Context, since uint64) (Snapshot, error) {
	for {
		m.mu.Lock()
		snap := m.snapshot
		changed := m.changed
		m.mu.Unlock()
		if snap.Version > since {
			return snap, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Publish delivers an entity event to every subscriber and retains it as the
// latest result.
func (m *StateMachine) Publish(evt Entity) {
	if evt.At.IsZero() {
		evt.At = m.now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastEntity = &evt
	for sub := range m.subs {
		offer(sub.entities, evt)
	}
}

// LastEntity returns the most recently published entity event.
func (m *StateMachine) LastEntity() (Entity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastEntity == nil {
		return Entity{}, false
	}
	return *m.lastEntity, true
}

// ClearEntity forgets the retained entity event.
func (m *StateMachine) ClearEntity() {
	m.mu.Lock()
	m.lastEntity = nil
	m.mu.Unlock()
}

// Subscribe registers an observer. The current state is delivered immediately.
func (m *StateMachine) Subscribe() *Subscription {
	sub := &Subscription{
		machine:  m,
		states:   make(chan State, 1),
		entities: make(chan Entity, 1),
	}
	m.mu.Lock()
	m.subs[sub] = struct{}{}
	sub.states <- m.snapshot.State
	m.mu.Unlock()
	return sub
}

// Unsubscribe removes sub and closes its channels. Safe to call more than once.
func (m *StateMachine) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub]; !ok {
		return
	}
	delete(m.subs, sub)
	close(sub.states)
	close(sub.entities)
}

// offer performs a last-write-wins send on a one-slot channel. Callers hold m.mu.
func offer[T any](ch chan T, v T) {
	select {
	case ch <- v:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
