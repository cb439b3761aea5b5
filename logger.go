package exhibitid

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/exhibitid/model"
)

// Logger wraps slog.Logger with exhibit-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithExhibit adds an exhibit id field to the logger.
func (l *Logger) WithExhibit(id model.ID) *Logger {
	return &Logger{
		Logger: l.Logger.With("exhibit", id.String()),
	}
}

// LogIdentify logs an identification.
func (l *Logger) LogIdentify(ctx context.Context, queries int, m Match, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "identify failed",
			"queries", queries,
			"error", err,
		)
	case m.Found:
		l.DebugContext(ctx, "identify completed",
			"queries", queries,
			"exhibit", m.ID.String(),
			"votes", m.Votes,
			"generation", m.Generation,
		)
	default:
		l.DebugContext(ctx, "identify found no exhibit",
			"queries", queries,
			"generation", m.Generation,
		)
	}
}

// LogAdd logs an add operation.
func (l *Logger) LogAdd(ctx context.Context, id model.ID, descriptors int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add exhibit failed",
			"descriptors", descriptors,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "exhibit added",
			"exhibit", id.String(),
			"descriptors", descriptors,
		)
	}
}

// LogDelete logs a delete operation. removed is the number of index rows dropped.
func (l *Logger) LogDelete(ctx context.Context, id model.ID, removed int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "delete exhibit failed",
			"exhibit", id.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "exhibit deleted",
			"exhibit", id.String(),
			"rows_removed", removed,
		)
	}
}

// LogLoad logs the initial index load.
func (l *Logger) LogLoad(ctx context.Context, records, rows, skipped int, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "index load aborted",
			"records", records,
			"rows", rows,
			"error", err,
		)
	case skipped > 0:
		l.WarnContext(ctx, "index loaded with skipped records",
			"records", records,
			"rows", rows,
			"skipped", skipped,
		)
	default:
		l.InfoContext(ctx, "index loaded",
			"records", records,
			"rows", rows,
		)
	}
}

// LogSkipped logs a record left out of the index.
func (l *Logger) LogSkipped(ctx context.Context, reason string, err error) {
	l.WarnContext(ctx, "record skipped",
		"reason", reason,
		"error", err,
	)
}
