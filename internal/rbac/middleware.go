package rbac

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/taller-erp/taller/internal/platform/httpx"
	"github.com/taller-erp/taller/internal/shared"
)

// RouteGuard gates route groups on permission codes.
type RouteGuard interface {
	RequireAny(perms ...string) func(http.Handler) http.Handler
	RequireAll(perms ...string) func(http.Handler) http.Handler
}

var _ RouteGuard = Middleware{}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Guard  *Guard
	Logger *slog.Logger
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, false)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return m.require(perms, true)
}

func (m Middleware) require(perms []string, all bool) func(http.Handler) http.Handler {
	normalized := normalizeCodes(perms)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(normalized) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			sess := CurrentSession(r)
			var err error
			if all {
				err = m.Guard.EnsureAll(r.Context(), sess, normalized, WithNote(r.Method+" "+r.URL.Path))
			} else {
				err = m.Guard.EnsureAny(r.Context(), sess, normalized, WithNote(r.Method+" "+r.URL.Path))
			}
			if err != nil {
				m.respond(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) respond(w http.ResponseWriter, err error) {
	var denied *PermissionDeniedError
	if !errors.As(err, &denied) && !errors.Is(err, ErrSessionInvalid) && m.Logger != nil {
		m.Logger.Error("rbac guard", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

// CurrentSession returns the request's session as a guard Session, or nil
// when the request carries none.
func CurrentSession(r *http.Request) Session {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		return nil
	}
	return sess
}

// ActorID returns the authenticated user id of the request, or 0.
func ActorID(r *http.Request) int64 {
	id, _ := shared.SessionFromContext(r.Context()).UserID()
	return id
}
