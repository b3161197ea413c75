package orchestra

// Logger defines the interface for orchestrator logging.
// Messages carry structured key-value pairs:
//
//	logger.Info("Manager started", "manager", "telemetry", "duration", d)
//
// *slog.Logger satisfies this interface and is used when no logger is set.
type Logger interface {
	// Info logs lifecycle progress such as managers starting and stopping.
	Info(msg string, args ...any)

	// Error logs failures that are contained, e.g. a rollback stop that failed.
	Error(msg string, args ...any)

	// Warn logs unusual conditions such as a degraded manager or an abandoned
	// health loop.
	Warn(msg string, args ...any)

	// Debug logs per-cycle diagnostics.
	Debug(msg string, args ...any)
}
