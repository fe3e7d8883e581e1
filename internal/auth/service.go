package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/taller-erp/taller/internal/audit"
	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/shared"
)

// PermissionResolver computes a user's effective permissions.
type PermissionResolver interface {
	Resolve(ctx context.Context, userID int64, opts ...rbac.Option) (rbac.Resolution, error)
}

// AuditSink receives login events.
type AuditSink interface {
	LogEvent(ctx context.Context, ev audit.Event)
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	resolver PermissionResolver
	audit    AuditSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, resolver PermissionResolver, audit AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, resolver: resolver, audit: audit, logger: logger, now: time.Now}
}

// Authenticate validates email/password credentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// Login authenticates and returns the user with the granted permission codes
// at this moment. The codes are only a snapshot; guards resolve again.
func (s *Service) Login(ctx context.Context, email, password string) (*User, []string, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		s.log(ctx, audit.Event{Action: "LOGIN_FAILED", Table: "users", Description: "login failed for " + email})
		return nil, nil, err
	}
	res, err := s.resolver.Resolve(ctx, user.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve permissions: %w", err)
	}
	if err := s.repo.TouchLastLogin(ctx, user.ID, s.now()); err != nil {
		s.logger.Warn("touch last login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	s.log(ctx, audit.Event{UserID: user.ID, Action: "LOGIN", Table: "users", Description: "login " + user.Email})
	return user, res.Codes(), nil
}

// Me returns the user and a fresh resolution of their permissions.
func (s *Service) Me(ctx context.Context, userID int64) (*User, rbac.Resolution, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return nil, rbac.Resolution{}, err
	}
	res, err := s.resolver.Resolve(ctx, userID)
	if err != nil {
		return nil, rbac.Resolution{}, err
	}
	return user, res, nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return s.repo.CreateSession(ctx, id, userID, expiresAt, ip, ua)
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string, userID int64) error {
	if userID > 0 {
		s.log(ctx, audit.Event{UserID: userID, Action: "LOGOUT", Table: "users", Description: "logout"})
	}
	return s.repo.DeleteSession(ctx, id)
}

func (s *Service) log(ctx context.Context, ev audit.Event) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, ev)
	}
}
