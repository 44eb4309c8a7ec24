// Package daemon coordinates the long-running Reticle process and its system
// integration points.
//
// It wires configuration, the camera session engine, hotplug monitoring and
// the HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. One camera session runs at a time; the workflow state
// machine outlives sessions so API observers keep their cursor when a camera
// is unplugged and replaced.
//
// Keep orchestration logic here: detection, confirmation and search live in
// their own packages while the daemon focuses on startup, shutdown and high
// level coordination.
package daemon
