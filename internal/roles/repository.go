package roles

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL backed role listings.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var sortColumns = map[string]string{
	"name":       "r.name",
	"created_at": "r.created_at",
	"users":      "active_users",
}

// ListSummaries returns roles with permission and active-user counts.
func (r *Repository) ListSummaries(ctx context.Context, filters RoleListFilters) ([]Summary, error) {
	column, ok := sortColumns[filters.SortBy]
	if !ok {
		column = "r.name"
	}
	dir := "ASC"
	if strings.EqualFold(filters.SortDir, "desc") {
		dir = "DESC"
	}
	rows, err := r.pool.Query(ctx, `SELECT r.id, r.name, r.description, r.active, r.created_at, r.updated_at,
	(SELECT COUNT(*) FROM role_permissions rp WHERE rp.role_id = r.id) AS permissions,
	(SELECT COUNT(*) FROM users u WHERE u.role_id = r.id AND u.is_active) AS active_users
FROM roles r
WHERE $1 OR r.active
ORDER BY `+column+` `+dir+`, r.id`, filters.IncludeInactive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Summary
	for rows.Next() {
		var (
			s    Summary
			desc pgtype.Text
		)
		if err := rows.Scan(&s.ID, &s.Name, &desc, &s.Active, &s.CreatedAt, &s.UpdatedAt, &s.Permissions, &s.ActiveUsers); err != nil {
			return nil, err
		}
		if desc.Valid {
			v := desc.String
			s.Description = &v
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
