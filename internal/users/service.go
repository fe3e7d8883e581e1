package users

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/taller-erp/taller/internal/audit"
	"github.com/taller-erp/taller/internal/platform/httpx"
	"github.com/taller-erp/taller/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, f ListFilters) ([]User, int, error)
	GetUser(ctx context.Context, id int64) (User, error)
	CreateUser(ctx context.Context, email, name, passwordHash string, roleID *int64) (int64, error)
	UpdateRole(ctx context.Context, id int64, roleID *int64) error
	SetActive(ctx context.Context, id int64, active bool) error
	RoleActive(ctx context.Context, roleID int64) (exists bool, active bool, err error)
}

// AuditSink receives fire-and-forget audit events.
type AuditSink interface {
	LogEvent(ctx context.Context, ev audit.Event)
}

// Service handles user business logic. Role membership changes take effect
// on the user's next permission check.
type Service struct {
	repo   RepositoryPort
	audit  AuditSink
	logger *slog.Logger
	cost   int
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, audit AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, cost: bcrypt.DefaultCost}
}

// ListUsers returns a page of users with pagination metadata.
func (s *Service) ListUsers(ctx context.Context, f ListFilters, page, perPage int) ([]User, shared.Pagination, error) {
	p := shared.NewPagination(page, perPage, 0)
	f.Limit = p.PerPage
	f.Offset = p.Offset()
	users, total, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	if users == nil {
		users = []User{}
	}
	return users, shared.NewPagination(p.Page, p.PerPage, total), nil
}

// GetUser returns one user.
func (s *Service) GetUser(ctx context.Context, id int64) (User, error) {
	return s.repo.GetUser(ctx, id)
}

// CreateUser hashes the password and stores a new active account.
func (s *Service) CreateUser(ctx context.Context, in CreateUserInput, actorID int64) (User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if email == "" || name == "" || len(in.Password) < 8 {
		return User{}, fmt.Errorf("%w: email, name and an 8+ character password are required", httpx.ErrValidation)
	}
	if in.RoleID != nil {
		if err := s.ensureRoleAssignable(ctx, *in.RoleID); err != nil {
			return User{}, err
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return User{}, fmt.Errorf("users: hash password: %w", err)
	}
	id, err := s.repo.CreateUser(ctx, email, name, string(hash), in.RoleID)
	if err != nil {
		return User{}, err
	}
	s.log(ctx, actorID, "USER_CREATED", "user "+strconv.FormatInt(id, 10)+" "+email)
	return s.repo.GetUser(ctx, id)
}

// ChangeRole moves the user to roleID, or leaves them without a role when
// roleID is nil. Inactive roles cannot be assigned.
func (s *Service) ChangeRole(ctx context.Context, userID int64, roleID *int64, actorID int64) (User, error) {
	if roleID != nil {
		if err := s.ensureRoleAssignable(ctx, *roleID); err != nil {
			return User{}, err
		}
	}
	if err := s.repo.UpdateRole(ctx, userID, roleID); err != nil {
		return User{}, err
	}
	desc := "user " + strconv.FormatInt(userID, 10) + " role cleared"
	if roleID != nil {
		desc = "user " + strconv.FormatInt(userID, 10) + " role " + strconv.FormatInt(*roleID, 10)
	}
	s.log(ctx, actorID, "USER_ROLE_CHANGED", desc)
	return s.repo.GetUser(ctx, userID)
}

// SetActive enables or disables an account. Disabled users fail every
// permission check.
func (s *Service) SetActive(ctx context.Context, userID int64, active bool, actorID int64) (User, error) {
	if !active && userID == actorID {
		return User{}, ErrSelfDeactivation
	}
	if err := s.repo.SetActive(ctx, userID, active); err != nil {
		return User{}, err
	}
	action := "USER_DISABLED"
	if active {
		action = "USER_ENABLED"
	}
	s.log(ctx, actorID, action, "user "+strconv.FormatInt(userID, 10))
	return s.repo.GetUser(ctx, userID)
}

func (s *Service) ensureRoleAssignable(ctx context.Context, roleID int64) error {
	exists, active, err := s.repo.RoleActive(ctx, roleID)
	if err != nil {
		return err
	}
	if !exists || !active {
		return ErrRoleUnavailable
	}
	return nil
}

func (s *Service) log(ctx context.Context, actorID int64, action, desc string) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, audit.Event{UserID: actorID, Action: action, Description: desc, Table: "users"})
}
