package roles

import (
	"context"

	"github.com/taller-erp/taller/internal/rbac"
)

// RoleAdmin is the role side of rbac.Service.
type RoleAdmin interface {
	GetRole(ctx context.Context, id int64) (rbac.Role, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]rbac.RolePermissionView, error)
	CreateRole(ctx context.Context, in rbac.RoleInput, actorID int64) (rbac.Role, error)
	UpdateRole(ctx context.Context, id int64, in rbac.RoleInput, actorID int64) (rbac.Role, error)
	DisableRole(ctx context.Context, roleID, actorID int64) (rbac.DisableResult, error)
	EnableRole(ctx context.Context, roleID, actorID int64) (rbac.Role, error)
	Assign(ctx context.Context, roleID int64, codes []string, actorID int64, note string) ([]rbac.RolePermission, error)
	Unassign(ctx context.Context, roleID int64, code string, actorID int64) error
	SyncRolePermissions(ctx context.Context, roleID int64, codes []string, actorID int64) ([]rbac.RolePermissionView, error)
}

// SummaryPort lists roles with usage counts.
type SummaryPort interface {
	ListSummaries(ctx context.Context, filters RoleListFilters) ([]Summary, error)
}

// Service composes role listings with the rbac role operations.
type Service struct {
	RoleAdmin
	summaries SummaryPort
}

// NewService builds Service instance.
func NewService(admin RoleAdmin, summaries SummaryPort) *Service {
	return &Service{RoleAdmin: admin, summaries: summaries}
}

// ListRoles returns the administration listing.
func (s *Service) ListRoles(ctx context.Context, filters RoleListFilters) ([]Summary, error) {
	list, err := s.summaries.ListSummaries(ctx, filters)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []Summary{}
	}
	return list, nil
}

// Detail returns a role with its permission links.
func (s *Service) Detail(ctx context.Context, id int64) (Detail, error) {
	role, err := s.GetRole(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	perms, err := s.ListRolePermissions(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	return Detail{Role: role, Permissions: perms}, nil
}

var _ RoleAdmin = (*rbac.Service)(nil)
