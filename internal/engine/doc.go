// Package engine wires one camera session: frames flow through the pipeline
// to the detector, results are filtered and a candidate selected, the
// confirmation controller decides when the candidate is committed, and the
// workflow state machine and search dispatcher take it from there.
//
// All session state is owned by a single event loop. Detection outcomes,
// search outcomes and external operations (search, dismiss, resume) are all
// closures on that loop, so no session field is guarded by a lock. Outside
// readers see the workflow state through the state machine's atomic snapshot
// and the Status summary.
package engine
