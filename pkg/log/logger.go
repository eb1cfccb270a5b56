package log

// Logger receives protocol trace events. Pass NoopLogger (or nil where the
// caller documents it) to disable tracing.
type Logger interface {
	// Log records an event. Implementations must be safe for concurrent use
	// because every session goroutine logs through the same Logger.
	Log(event Event)
}

// NoopLogger discards all events. It is usable as a zero value.
type NoopLogger struct{}

// Log discards the event.
func (NoopLogger) Log(Event) {}

// OrNoop returns l, or NoopLogger when l is nil.
func OrNoop(l Logger) Logger {
	if l == nil {
		return NoopLogger{}
	}
	return l
}

// Compile-time interface satisfaction check.
var _ Logger = NoopLogger{}
