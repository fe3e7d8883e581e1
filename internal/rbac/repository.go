package rbac

import "context"

// Repository is the data-access boundary of the permission core. A
// Repository handed to a WithTx callback is bound to that transaction;
// calling WithTx on it again joins the same transaction.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error

	ListPermissions(ctx context.Context, includeInactive bool) ([]Permission, error)
	FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error)
	UpsertPermission(ctx context.Context, p Permission) (Permission, error)
	SetPermissionActive(ctx context.Context, code string, active bool) (Permission, error)

	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	CreateRole(ctx context.Context, name string, description *string) (Role, error)
	UpdateRole(ctx context.Context, id int64, name string, description *string) (Role, error)
	SetRoleActive(ctx context.Context, id int64, active bool) (Role, error)
	CountActiveUsersWithRole(ctx context.Context, roleID int64) (int, error)

	// ListRolePermissions returns every catalog entry linked to the role,
	// including inactive ones.
	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]RolePermission, error)
	DetachPermission(ctx context.Context, roleID, permissionID int64) (bool, error)

	GetUser(ctx context.Context, id int64) (User, error)

	ListUserOverrides(ctx context.Context, userID int64) ([]UserPermission, error)
	UpsertUserOverride(ctx context.Context, o UserPermission) (UserPermission, error)
	DeleteUserOverride(ctx context.Context, userID, permissionID int64) (bool, error)
	// DeleteUserOverridesExcept removes the user's overrides whose origin is
	// not listed in keep and returns how many rows were removed.
	DeleteUserOverridesExcept(ctx context.Context, userID int64, keep []Origin) (int, error)
}
