package rbac

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Session is the part of an authenticated session the guard relies on.
type Session interface {
	UserID() (int64, bool)
}

// DecisionRecorder counts guard outcomes.
type DecisionRecorder interface {
	ObserveGuardDecision(code, outcome string)
}

// Guard outcomes as reported to the DecisionRecorder.
const (
	OutcomeGranted         = "granted"
	OutcomeDenied          = "denied"
	OutcomeUnauthenticated = "unauthenticated"
	OutcomeError           = "error"
)

// Guard answers "may this session do X". Every check resolves from the
// store, so role, override and catalog changes apply on the next request.
type Guard struct {
	resolver *Resolver
	audit    AuditSink
	recorder DecisionRecorder
	logger   *slog.Logger
}

// NewGuard constructs a Guard reading through repo.
func NewGuard(repo Repository, audit AuditSink, recorder DecisionRecorder, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{resolver: NewResolver(repo), audit: audit, recorder: recorder, logger: logger}
}

// EnsurePermission returns nil when the session's user holds code,
// ErrSessionInvalid when no active user is behind the session, and a
// *PermissionDeniedError otherwise.
func (g *Guard) EnsurePermission(ctx context.Context, sess Session, code string, opts ...Option) error {
	return g.ensure(ctx, sess, []string{code}, false, opts)
}

// EnsureAny succeeds when the user holds at least one of codes.
func (g *Guard) EnsureAny(ctx context.Context, sess Session, codes []string, opts ...Option) error {
	return g.ensure(ctx, sess, codes, false, opts)
}

// EnsureAll succeeds when the user holds every one of codes.
func (g *Guard) EnsureAll(ctx context.Context, sess Session, codes []string, opts ...Option) error {
	return g.ensure(ctx, sess, codes, true, opts)
}

func (g *Guard) ensure(ctx context.Context, sess Session, codes []string, all bool, opts []Option) error {
	codes = normalizeCodes(codes)
	label := strings.Join(codes, "|")

	userID, ok := sessionUser(sess)
	if !ok {
		g.record(label, OutcomeUnauthenticated)
		return ErrSessionInvalid
	}

	res, err := g.resolver.Resolve(ctx, userID, opts...)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			g.record(label, OutcomeUnauthenticated)
			return ErrSessionInvalid
		}
		g.record(label, OutcomeError)
		g.logger.Error("rbac guard resolve", slog.Int64("user_id", userID), slog.Any("error", err))
		return err
	}
	if !res.UserActive {
		g.record(label, OutcomeUnauthenticated)
		return ErrSessionInvalid
	}
	missing := ""
	if len(codes) == 0 {
		g.record(label, OutcomeDenied)
		logEvent(ctx, g.audit, AuditEvent{
			UserID:      userID,
			Action:      "ACCESS_DENIED",
			Description: "denied blank permission code",
			Table:       "permissions",
		})
		return &PermissionDeniedError{Code: missing}
	}

	for _, code := range codes {
		granted := res.Granted(code)
		if all && !granted {
			missing = code
			break
		}
		if !all && granted {
			g.record(label, OutcomeGranted)
			return nil
		}
	}
	if all && missing == "" {
		g.record(label, OutcomeGranted)
		return nil
	}
	if missing == "" {
		missing = codes[0]
	}

	g.record(label, OutcomeDenied)
	desc := "denied " + missing
	if note := applyOptions(nil, opts).note; note != "" {
		desc += ": " + note
	}
	logEvent(ctx, g.audit, AuditEvent{
		UserID:      userID,
		Action:      "ACCESS_DENIED",
		Description: desc,
		Table:       "permissions",
	})
	return &PermissionDeniedError{Code: missing}
}

func (g *Guard) record(code, outcome string) {
	if g.recorder != nil {
		g.recorder.ObserveGuardDecision(code, outcome)
	}
}

// sessionUser tolerates nil interfaces and typed nil pointers.
func sessionUser(sess Session) (id int64, ok bool) {
	if sess == nil {
		return 0, false
	}
	defer func() {
		if recover() != nil {
			id, ok = 0, false
		}
	}()
	id, ok = sess.UserID()
	if id <= 0 {
		return 0, false
	}
	return id, ok
}

func normalizeCodes(codes []string) []string {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// actorSession adapts a bare user id for internal self-checks.
type actorSession int64

func (a actorSession) UserID() (int64, bool) { return int64(a), a > 0 }
