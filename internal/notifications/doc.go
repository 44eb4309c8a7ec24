// Package notifications delivers session events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and degrades to a no-op when notifications are disabled. Each
// event type is gated by its own toggle in the [notifications] section, so a
// busy camera does not flood the topic with confirmations nobody asked for.
//
// Engine and daemon code depend only on the Service interface.
package notifications
