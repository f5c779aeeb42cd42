// Package logging assembles structured slog loggers and formatting helpers used
// across royalty components.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context-aware helpers that tag lines with run ids, period keys and
// partitions. NewNop serves tests and wiring code that cannot fail.
package logging
