package rbac

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taller-erp/taller/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db   dbtx
	pool *pgxpool.Pool
	tx   pgx.Tx
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{db: pool, pool: pool}
}

// WithTx runs fn in a repeatable-read transaction, or inside the current one.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &PGRepository{db: tx, pool: r.pool, tx: tx})
	})
}

const permissionColumns = `p.id, p.code, p.name, p.description, p.module, p.group_name, p.active`

func scanPermission(row pgx.Row) (Permission, error) {
	var (
		p     Permission
		desc  pgtype.Text
		group pgtype.Text
	)
	if err := row.Scan(&p.ID, &p.Code, &p.Name, &desc, &p.Module, &group, &p.Active); err != nil {
		return Permission{}, err
	}
	p.Description = textPtr(desc)
	p.Group = textPtr(group)
	return p, nil
}

func collectPermissions(rows pgx.Rows, err error) ([]Permission, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// ListPermissions returns catalog entries ordered by module and code.
func (r *PGRepository) ListPermissions(ctx context.Context, includeInactive bool) ([]Permission, error) {
	return collectPermissions(r.db.Query(ctx, `SELECT `+permissionColumns+`
FROM permissions p
WHERE $1 OR p.active
ORDER BY p.module, p.code`, includeInactive))
}

// FindPermissionsByCodes loads the catalog entries matching codes in one query.
func (r *PGRepository) FindPermissionsByCodes(ctx context.Context, codes []string) ([]Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	return collectPermissions(r.db.Query(ctx, `SELECT `+permissionColumns+`
FROM permissions p
WHERE p.code = ANY($1)`, codes))
}

// UpsertPermission inserts or refreshes presentation fields of a catalog entry.
// The active flag of an existing entry is left untouched.
func (r *PGRepository) UpsertPermission(ctx context.Context, p Permission) (Permission, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO permissions AS p (code, name, description, module, group_name, active)
VALUES ($1, $2, $3, $4, $5, TRUE)
ON CONFLICT (code) DO UPDATE SET
	name = EXCLUDED.name,
	description = EXCLUDED.description,
	module = EXCLUDED.module,
	group_name = EXCLUDED.group_name,
	updated_at = NOW()
RETURNING `+permissionColumns, p.Code, p.Name, p.Description, p.Module, p.Group)
	return scanPermission(row)
}

// SetPermissionActive flips the catalog flag for code.
func (r *PGRepository) SetPermissionActive(ctx context.Context, code string, active bool) (Permission, error) {
	row := r.db.QueryRow(ctx, `UPDATE permissions AS p SET active = $2, updated_at = NOW()
WHERE p.code = $1
RETURNING `+permissionColumns, code, active)
	p, err := scanPermission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Permission{}, &PermissionNotFoundError{Code: code}
	}
	return p, err
}

const roleColumns = `id, name, description, active, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role Role
		desc pgtype.Text
	)
	if err := row.Scan(&role.ID, &role.Name, &desc, &role.Active, &role.CreatedAt, &role.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrRoleNotFound
		}
		if db.IsUniqueViolation(err) {
			return Role{}, ErrRoleNameTaken
		}
		return Role{}, err
	}
	role.Description = textPtr(desc)
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *PGRepository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// GetRole fetches a role by ID.
func (r *PGRepository) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

// CreateRole inserts a new active role.
func (r *PGRepository) CreateRole(ctx context.Context, name string, description *string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `INSERT INTO roles (name, description, active)
VALUES ($1, $2, TRUE)
RETURNING `+roleColumns, name, description))
}

// UpdateRole renames a role and replaces its description.
func (r *PGRepository) UpdateRole(ctx context.Context, id int64, name string, description *string) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `UPDATE roles SET name = $2, description = $3, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, id, name, description))
}

// SetRoleActive toggles the role flag without touching its permission links.
func (r *PGRepository) SetRoleActive(ctx context.Context, id int64, active bool) (Role, error) {
	return scanRole(r.db.QueryRow(ctx, `UPDATE roles SET active = $2, updated_at = NOW()
WHERE id = $1
RETURNING `+roleColumns, id, active))
}

// CountActiveUsersWithRole counts active users currently holding the role.
func (r *PGRepository) CountActiveUsersWithRole(ctx context.Context, roleID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role_id = $1 AND is_active`, roleID).Scan(&n)
	return n, err
}

// ListRolePermissions returns every catalog entry linked to the role.
func (r *PGRepository) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	return collectPermissions(r.db.Query(ctx, `SELECT `+permissionColumns+`
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1
ORDER BY p.module, p.code`, roleID))
}

// AttachPermissions links permissions to a role, skipping existing links.
func (r *PGRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) ([]RolePermission, error) {
	if len(permissionIDs) == 0 {
		return nil, nil
	}
	if _, err := r.db.Exec(ctx, `INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, unnest($2::bigint[])
ON CONFLICT (role_id, permission_id) DO NOTHING`, roleID, permissionIDs); err != nil {
		return nil, err
	}
	rows, err := r.db.Query(ctx, `SELECT rp.role_id, rp.permission_id, p.code, rp.created_at
FROM role_permissions rp
JOIN permissions p ON p.id = rp.permission_id
WHERE rp.role_id = $1 AND rp.permission_id = ANY($2)
ORDER BY p.module, p.code`, roleID, permissionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var links []RolePermission
	for rows.Next() {
		var link RolePermission
		if err := rows.Scan(&link.RoleID, &link.PermissionID, &link.Code, &link.CreatedAt); err != nil {
			return nil, err
		}
		links = append(links, link)
	}
	return links, rows.Err()
}

// DetachPermission removes a role link and reports whether one existed.
func (r *PGRepository) DetachPermission(ctx context.Context, roleID, permissionID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`, roleID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// GetUser loads the role membership and active flag of a user.
func (r *PGRepository) GetUser(ctx context.Context, id int64) (User, error) {
	var (
		u      User
		roleID pgtype.Int8
	)
	err := r.db.QueryRow(ctx, `SELECT id, role_id, is_active FROM users WHERE id = $1`, id).Scan(&u.ID, &roleID, &u.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	if roleID.Valid {
		v := roleID.Int64
		u.RoleID = &v
	}
	return u, nil
}

const overrideColumns = `up.user_id, up.permission_id, p.code, up.granted, up.origin, up.comment, up.granted_by, up.updated_at`

func scanOverride(row pgx.Row) (UserPermission, error) {
	var (
		o         UserPermission
		origin    string
		comment   pgtype.Text
		grantedBy pgtype.Int8
	)
	if err := row.Scan(&o.UserID, &o.PermissionID, &o.Code, &o.Granted, &origin, &comment, &grantedBy, &o.UpdatedAt); err != nil {
		return UserPermission{}, err
	}
	o.Origin = Origin(origin)
	o.Comment = textPtr(comment)
	if grantedBy.Valid {
		v := grantedBy.Int64
		o.GrantedBy = &v
	}
	return o, nil
}

// ListUserOverrides returns every override row of the user regardless of the
// catalog flag. A missing user_permissions table yields ErrOverridesUnavailable.
// Inside a transaction the read runs under a savepoint so that failure leaves
// the outer transaction usable.
func (r *PGRepository) ListUserOverrides(ctx context.Context, userID int64) ([]UserPermission, error) {
	if r.tx == nil {
		return queryOverrides(ctx, r.db, userID)
	}
	sp, err := r.tx.Begin(ctx)
	if err != nil {
		return nil, err
	}
	overrides, err := queryOverrides(ctx, sp, userID)
	if err != nil {
		_ = sp.Rollback(ctx)
		return nil, err
	}
	if err := sp.Commit(ctx); err != nil {
		return nil, err
	}
	return overrides, nil
}

func queryOverrides(ctx context.Context, q dbtx, userID int64) ([]UserPermission, error) {
	rows, err := q.Query(ctx, `SELECT `+overrideColumns+`
FROM user_permissions up
JOIN permissions p ON p.id = up.permission_id
WHERE up.user_id = $1
ORDER BY p.module, p.code`, userID)
	if err != nil {
		if db.IsUndefinedTable(err) {
			return nil, ErrOverridesUnavailable
		}
		return nil, err
	}
	defer rows.Close()
	var overrides []UserPermission
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		overrides = append(overrides, o)
	}
	if err := rows.Err(); err != nil {
		if db.IsUndefinedTable(err) {
			return nil, ErrOverridesUnavailable
		}
		return nil, err
	}
	return overrides, nil
}

// UpsertUserOverride writes the override for (user, permission); the last write wins.
func (r *PGRepository) UpsertUserOverride(ctx context.Context, o UserPermission) (UserPermission, error) {
	row := r.db.QueryRow(ctx, `WITH up AS (
	INSERT INTO user_permissions (user_id, permission_id, granted, origin, comment, granted_by, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (user_id, permission_id) DO UPDATE SET
		granted = EXCLUDED.granted,
		origin = EXCLUDED.origin,
		comment = EXCLUDED.comment,
		granted_by = EXCLUDED.granted_by,
		updated_at = EXCLUDED.updated_at
	RETURNING *
)
SELECT `+overrideColumns+`
FROM up
JOIN permissions p ON p.id = up.permission_id`,
		o.UserID, o.PermissionID, o.Granted, string(o.Origin), o.Comment, o.GrantedBy, time.Now().UTC())
	return scanOverride(row)
}

// DeleteUserOverride removes one override and reports whether it existed.
func (r *PGRepository) DeleteUserOverride(ctx context.Context, userID, permissionID int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND permission_id = $2`, userID, permissionID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteUserOverridesExcept removes overrides whose origin is not in keep.
func (r *PGRepository) DeleteUserOverridesExcept(ctx context.Context, userID int64, keep []Origin) (int, error) {
	origins := make([]string, len(keep))
	for i, o := range keep {
		origins[i] = string(o)
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1 AND NOT (origin = ANY($2))`, userID, origins)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func textPtr(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	v := t.String
	return &v
}

var _ Repository = (*PGRepository)(nil)
