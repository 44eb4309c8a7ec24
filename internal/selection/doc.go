// Package selection picks at most one candidate per frame and keeps the
// per-identity bookkeeping for tracked objects.
//
// Selection is deterministic: the first item in detector order that satisfies
// the session's rule wins, with no distance comparison across qualifying items.
package selection
