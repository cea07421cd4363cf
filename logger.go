package framegraph

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// nopHandler is a slog.Handler that silently discards all log records.
// The Enabled method returns false so the caller skips message formatting
// entirely, making disabled logging effectively zero-cost.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

// newNopLogger creates a logger that silently discards all output.
func newNopLogger() *slog.Logger { return slog.New(nopHandler{}) }

// loggerPtr stores the active logger. Accessed atomically so that
// SetLogger can be called concurrently with logging from any goroutine.
var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	l := newNopLogger()
	loggerPtr.Store(l)
}

// SetLogger configures the logger for framegraph and all its sub-packages.
// By default, framegraph produces no log output. Call SetLogger to enable
// logging.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to disable logging (restore default silent behavior).
//
// Log levels used by framegraph:
//   - [slog.LevelDebug]: internal diagnostics (capture counts, pass ordering,
//     snapshot overwrites)
//   - [slog.LevelInfo]: important lifecycle events (recovery runs)
//   - [slog.LevelWarn]: non-fatal issues (capture failures, manager
//     reinitialization errors, pass execution errors)
//
// Example:
//
//	// Enable info-level logging to stderr:
//	framegraph.SetLogger(slog.Default())
//
//	// Enable debug-level logging for full diagnostics:
//	framegraph.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = newNopLogger()
	}
	loggerPtr.Store(l)

	sinkMu.RLock()
	defer sinkMu.RUnlock()
	for _, sink := range loggerSinks {
		sink(l)
	}
}

// Logger returns the current logger used by framegraph.
// Sub-packages that this package imports receive the logger through
// registered sinks; sub-packages that import this package (effect/) call
// Logger directly to share the same configuration without import cycles.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return loggerPtr.Load()
}

// loggerSinks holds propagation targets for packages that cannot import
// framegraph (internal/gpu). GPU-build files register their sink in init,
// so builds that exclude them carry no dead propagation.
var (
	sinkMu      sync.RWMutex
	loggerSinks []func(*slog.Logger)
)

// registerLoggerSink adds a propagation target and immediately hands it the
// current logger so late registration never misses a SetLogger call.
func registerLoggerSink(sink func(*slog.Logger)) {
	sinkMu.Lock()
	loggerSinks = append(loggerSinks, sink)
	sinkMu.Unlock()
	sink(Logger())
}
