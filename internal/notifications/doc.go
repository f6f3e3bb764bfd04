// Package notifications delivers optional push notifications for task
// lifecycle events via ntfy. When no topic is configured the service is a
// noop, so callers never need to guard their calls.
package notifications
