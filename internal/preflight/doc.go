// Package preflight provides readiness checks for the devices, paths and
// external services that Reticle depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll before opening a camera session and logs every
//     failed check; a failed camera check keeps the session closed.
//   - The CLI "reticle preflight" command renders the full result table.
//
// Each check is gated by its config toggle; disabled features are skipped.
package preflight
