package selection

import (
	"time"

	"reticle/internal/detection"
)

// EntityState is the transient bookkeeping kept for one tracked identity.
type EntityState struct {
	Identity       detection.Identity
	FirstSeen      time.Time
	LastSeenSeq    uint64
	EntrancePlayed bool

	cancel func()
}

// SyncResult lists the identities that appeared or disappeared in a frame.
type SyncResult struct {
	Added   []detection.Identity
	Removed []detection.Identity
}

// Registry maps tracking identities to their state. Untracked items are never
// registered. It is owned by the session event loop.
type Registry struct {
	entries map[detection.Identity]*EntityState
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[detection.Identity]*EntityState)}
}

// Sync prunes identities absent from items, cancelling any entrance handle,
// and creates state for new identities.
func (r *Registry) Sync(items []detection.Item, seq uint64, now time.Time) SyncResult {
	var result SyncResult
	present := make(map[detection.Identity]struct{}, len(items))
	for _, item := range items {
		if item.TrackingID.Valid {
			present[item.TrackingID] = struct{}{}
		}
	}

	for id, state := range r.entries {
		if _, ok := present[id]; ok {
			continue
		}
		if state.cancel != nil {
			state.cancel()
		}
		delete(r.entries, id)
		result.Removed = append(result.Removed, id)
	}

	for _, item := range items {
		id := item.TrackingID
		if !id.Valid {
			continue
		}
		state, ok := r.entries[id]
		if !ok {
			state = &EntityState{Identity: id, FirstSeen: now}
			r.entries[id] = state
			result.Added = append(result.Added, id)
		}
		state.LastSeenSeq = seq
	}
	return result
}

// MarkEntrancePlayed records that id's entrance effect has started. cancel,
// when non-nil, is invoked if the identity is pruned or the registry cleared.
// It returns false if id is unknown or its entrance already played.
func (r *Registry) MarkEntrancePlayed(id detection.Identity, cancel func()) bool {
	state, ok := r.entries[id]
	if !ok || state.EntrancePlayed {
		return false
	}
	state.EntrancePlayed = true
	state.cancel = cancel
	return true
}

// Get returns a copy of the state for id.
func (r *Registry) Get(id detection.Identity) (EntityState, bool) {
	state, ok := r.entries[id]
	if !ok {
		return EntityState{}, false
	}
	out := *state
	out.cancel = nil
	return out, true
}

// Len returns the number of tracked identities.
func (r *Registry) Len() int { return len(r.entries) }

// Clear removes every identity, cancelling entrance handles.
func (r *Registry) Clear() {
	for id, state := range r.entries {
		if state.cancel != nil {
			state.cancel()
		}
		delete(r.entries, id)
	}
}
