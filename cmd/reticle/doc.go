// Package main hosts the Reticle CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon, replays scripted camera
// sessions through the real engine, and translates terminal invocations into
// HTTP calls against a running daemon (status, search, dismiss, resume, logs).
// It centralizes configuration resolution, API discovery, and structured
// logging setup so subcommands can focus on user experience instead of wiring.
//
// Keep this package lean: add new functionality by extending the internal
// packages first, then surface it through dedicated commands or flags here.
package main
