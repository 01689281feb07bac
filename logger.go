package brainy

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with store-specific helpers so operational
// log lines carry consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler
// falls back to a text handler on stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithInstance tags the logger with the owning instance id.
func (l *Logger) WithInstance(id string) *Logger {
	return &Logger{Logger: l.Logger.With("instance", id)}
}

// LogAdd logs a node write.
func (l *Logger) LogAdd(ctx context.Context, id string, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add failed",
			"id", id,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "add completed",
			"id", id,
			"dimension", dimension,
		)
	}
}

// LogSearch logs a search operation, including how many partitions
// could not answer in time.
func (l *Logger) LogSearch(ctx context.Context, k, found, degraded int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "search failed",
			"k", k,
			"error", err,
		)
	case degraded > 0:
		l.WarnContext(ctx, "search degraded",
			"k", k,
			"results", found,
			"degraded_partitions", degraded,
		)
	default:
		l.DebugContext(ctx, "search completed",
			"k", k,
			"results", found,
		)
	}
}

// LogDelete logs a node delete.
func (l *Logger) LogDelete(ctx context.Context, id string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete failed",
			"id", id,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "delete completed",
			"id", id,
		)
	}
}

// LogSync logs a change-log sync pass.
func (l *Logger) LogSync(ctx context.Context, applied int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sync failed",
			"error", err,
		)
	} else if applied > 0 {
		l.InfoContext(ctx, "sync applied remote changes",
			"applied", applied,
		)
	} else {
		l.DebugContext(ctx, "sync found no remote changes")
	}
}

// LogBackup logs a backup or restore operation.
func (l *Logger) LogBackup(ctx context.Context, op string, nodes, edges int, err error) {
	if err != nil {
		l.ErrorContext(ctx, op+" failed",
			"error", err,
		)
	} else {
		l.InfoContext(ctx, op+" completed",
			"nodes", nodes,
			"edges", edges,
		)
	}
}
