package users

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taller-erp/taller/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `u.id, u.email, u.name, u.role_id, r.name, u.is_active, u.last_login_at, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		user      User
		roleID    pgtype.Int8
		roleName  pgtype.Text
		lastLogin pgtype.Timestamptz
	)
	err := row.Scan(&user.ID, &user.Email, &user.Name, &roleID, &roleName, &user.IsActive, &lastLogin, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, err
	}
	if roleID.Valid {
		v := roleID.Int64
		user.RoleID = &v
	}
	if roleName.Valid {
		v := roleName.String
		user.RoleName = &v
	}
	if lastLogin.Valid {
		v := lastLogin.Time
		user.LastLoginAt = &v
	}
	return user, nil
}

// ListUsers returns a page of users and the total match count.
func (r *Repository) ListUsers(ctx context.Context, f ListFilters) ([]User, int, error) {
	var search pgtype.Text
	if s := strings.TrimSpace(f.Search); s != "" {
		search = pgtype.Text{String: "%" + s + "%", Valid: true}
	}
	var roleID pgtype.Int8
	if f.RoleID > 0 {
		roleID = pgtype.Int8{Int64: f.RoleID, Valid: true}
	}
	var active pgtype.Bool
	if f.Active != nil {
		active = pgtype.Bool{Bool: *f.Active, Valid: true}
	}
	const where = `WHERE ($1::text IS NULL OR u.email ILIKE $1 OR u.name ILIKE $1)
  AND ($2::bigint IS NULL OR u.role_id = $2)
  AND ($3::boolean IS NULL OR u.is_active = $3)`

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users u `+where, search, roleID, active).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+`
FROM users u
LEFT JOIN roles r ON r.id = u.role_id
`+where+`
ORDER BY u.id
LIMIT $4 OFFSET $5`, search, roleID, active, f.Limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// GetUser fetches one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+`
FROM users u
LEFT JOIN roles r ON r.id = u.role_id
WHERE u.id = $1`, id))
}

// CreateUser inserts an active account.
func (r *Repository) CreateUser(ctx context.Context, email, name, passwordHash string, roleID *int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `INSERT INTO users (email, name, password_hash, role_id, is_active)
VALUES ($1, $2, $3, $4, TRUE)
RETURNING id`, email, name, passwordHash, roleID).Scan(&id)
	if db.IsUniqueViolation(err) {
		return 0, ErrEmailTaken
	}
	return id, err
}

// UpdateRole sets or clears the user's role.
func (r *Repository) UpdateRole(ctx context.Context, id int64, roleID *int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET role_id = $2, updated_at = NOW() WHERE id = $1`, id, roleID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetActive toggles the account flag.
func (r *Repository) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RoleActive reports whether the role exists and whether it is active.
func (r *Repository) RoleActive(ctx context.Context, roleID int64) (exists bool, active bool, err error) {
	err = r.pool.QueryRow(ctx, `SELECT active FROM roles WHERE id = $1`, roleID).Scan(&active)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}
	return true, active, nil
}

var _ RepositoryPort = (*Repository)(nil)
