// Package workflow owns the session-wide workflow state observed by the UI.
//
// The StateMachine holds exactly one State at a time. Only the session event
// loop calls Set; everyone else reads the atomically published value, polls
// Wait, or subscribes to a last-write-wins mailbox of states and entity
// events. The machine never reads UI state to decide transitions.
package workflow
