package log

// noopLogger discards everything. It backs components constructed
// without a logger and keeps test output quiet.
type noopLogger struct{}

// NewNoopLogger returns a Logger that drops all messages.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(msg string, fields ...Field) {}
func (noopLogger) Info(msg string, fields ...Field)  {}
func (noopLogger) Warn(msg string, fields ...Field)  {}
func (noopLogger) Error(msg string, fields ...Field) {}
