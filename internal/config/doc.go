// Package config loads, normalizes, and validates Reticle configuration.
//
// It resolves the TOML file location, expands user paths, applies defaults
// and environment overrides for secrets, and validates detection, confirmation,
// and search tuning before any camera session starts. An invalid proximity
// threshold or confirmation window is a startup error, never a runtime one.
package config
