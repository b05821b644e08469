// Package logging provides structured logging helpers built on log/slog.
//
// It defines the canonical attribute keys used across the codebase so that
// log output stays consistent and searchable, plus a small Logger interface
// and an slog-backed adapter for code that should not depend on slog
// directly.
package logging
