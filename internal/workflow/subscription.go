package workflow

import (
	"time"

	"reticle/internal/detection"
	"reticle/internal/search"
)

// EntityKind distinguishes confirmed-entity events.
type EntityKind string

const (
	// EntityConfirmed is published when a candidate is committed.
	EntityConfirmed EntityKind = "confirmed"
	// EntitySearched is published when the lookup for the current generation completes.
	EntitySearched EntityKind = "searched"
)

// Entity is the "confirmed entity ready" notification. Products and Err are
// set only for EntitySearched; a failed lookup carries fallback products.
type Entity struct {
	Kind       EntityKind
	Candidate  detection.Candidate
	Products   []search.Product
	Err        error
	Generation uint64
	At         time.Time
}

// Subscription is an observer's view of the machine. Each channel holds at
// most one value; a newer value replaces one the observer has not read yet.
type Subscription struct {
	machine  *StateMachine
	states   chan State
	entities chan Entity
}

// States delivers workflow states. The channel closes on Unsubscribe.
func (s *Subscription) States() <-chan State { return s.states }

// Entities delivers confirmed and searched entity events.
func (s *Subscription) Entities() <-chan Entity { return s.entities }

// Close unsubscribes from the machine.
func (s *Subscription) Close() {
	s.machine.Unsubscribe(s)
}
