// Package notifications delivers push notifications for pipeline events.
//
// Notifications are backed by ntfy when a topic is configured; otherwise a
// noop implementation is returned so callers never need nil checks. Event
// classes (publishes, errors, pass summaries) can be toggled independently
// in configuration.
package notifications
