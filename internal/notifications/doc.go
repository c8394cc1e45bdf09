// Package notifications publishes operator alerts to ntfy.
//
// It is the fallback channel for intrusion alerts when the backend cannot be
// reached, and reports indicator-tier changes into the error tier. When no
// topic is configured a no-op implementation is returned, so callers never
// need to check whether notifications are enabled.
package notifications
