package rbac

import (
	"context"

	"github.com/taller-erp/taller/internal/audit"
)

// AuditEvent is the event shape accepted by the audit sink.
type AuditEvent = audit.Event

// AuditSink receives fire-and-forget audit events. Implementations must not
// block the caller on failure.
type AuditSink interface {
	LogEvent(ctx context.Context, ev audit.Event)
}

func logEvent(ctx context.Context, sink AuditSink, ev AuditEvent) {
	if sink == nil {
		return
	}
	sink.LogEvent(ctx, ev)
}
