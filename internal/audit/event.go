package audit

import (
	"context"
	"strings"
)

// Event is a single fire-and-forget audit record.
type Event struct {
	UserID      int64
	Action      string
	Description string
	Table       string
	IP          string
}

type ipContextKey struct{}

// WithIP attaches the client address so events logged with ctx carry it.
func WithIP(ctx context.Context, ip string) context.Context {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return ctx
	}
	return context.WithValue(ctx, ipContextKey{}, ip)
}

// IPFromContext returns the address stored by WithIP.
func IPFromContext(ctx context.Context) string {
	ip, _ := ctx.Value(ipContextKey{}).(string)
	return ip
}
