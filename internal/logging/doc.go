// Package logging assembles structured slog loggers for Watchpost.
//
// It owns the console and JSON handlers, the level and output plumbing, and a
// small set of standardized field keys so that capture, delivery, and sweep
// log lines can be correlated by record key. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
