package types

// Logger defines methods for structured logging.
//
// Every method takes a message followed by alternating key-value pairs, the
// convention shared by log/slog and zap.SugaredLogger. Allocation paths log
// the interval, provenance and owner under those keys.
type Logger interface {
	// Debug logs retry details and cache decisions.
	Debug(msg string, keysAndValues ...any)

	// Info logs block lifecycle events.
	Info(msg string, keysAndValues ...any)

	// Warn logs recoverable problems such as lock timeouts or cache failures.
	Warn(msg string, keysAndValues ...any)

	// Error logs failed background operations.
	Error(msg string, keysAndValues ...any)

	// Fatal logs and terminates the process. Test and no-op loggers may not exit.
	Fatal(msg string, keysAndValues ...any)
}
