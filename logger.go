package livecache

// Fields carries structured context for one log line.
type Fields map[string]any

// ErrKey is the field adapters render as their native error attribute.
const ErrKey = "err"

// Logger receives diagnostic events: failed loads, discarded results,
// evictions and invalidation counts. Adapters live in log/zap, log/logrus
// and log/slog. A nil Logger in Options disables logging.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, Fields) {}
func (NopLogger) Info(string, Fields)  {}
func (NopLogger) Warn(string, Fields)  {}
func (NopLogger) Error(string, Fields) {}
