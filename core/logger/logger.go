// Package logger defines the logging interface the dispatch core depends on.
// Adapters live in infra/logger.
package logger

// Logger is implemented by the zerolog adapter and by NopLogger.
type Logger interface {
	Debugf(format string, args ...any)
	// Debugw logs msg with structured fields, e.g. the rule verdicts of a
	// rejected candidate.
	Debugw(msg string, fields map[string]any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}
