// Package logging assembles the structured slog loggers used across ripline.
//
// It owns the console and JSON handlers, level parsing and output routing, and
// the attribute helpers that keep field names consistent between components.
// Tests and wiring code that cannot fail use NewNop.
package logging
