package audit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultWriteTimeout = 3 * time.Second

// Store persists audit events.
type Store interface {
	Insert(ctx context.Context, ev Event) error
}

// Logger is the audit sink. LogEvent never fails the caller: store errors
// and panics are logged locally and dropped.
type Logger struct {
	store   Store
	logger  *slog.Logger
	timeout time.Duration
}

// NewLogger constructs an audit Logger.
func NewLogger(store Store, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{store: store, logger: logger, timeout: defaultWriteTimeout}
}

// LogEvent writes ev. The write outlives cancellation of ctx, bounded by
// the logger's own timeout.
func (l *Logger) LogEvent(ctx context.Context, ev Event) {
	if l == nil || l.store == nil {
		return
	}
	ev.Action = strings.TrimSpace(ev.Action)
	if ev.Action == "" {
		l.logger.Warn("audit event without action dropped")
		return
	}
	if ev.IP == "" {
		ev.IP = IPFromContext(ctx)
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
	defer cancel()

	if err := l.insert(writeCtx, ev); err != nil {
		l.logger.Warn("audit log write failed",
			slog.String("action", ev.Action),
			slog.Int64("user_id", ev.UserID),
			slog.Any("error", err))
	}
}

func (l *Logger) insert(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("audit: store panic: %v", r)
		}
	}()
	return l.store.Insert(ctx, ev)
}
