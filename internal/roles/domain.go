package roles

import "github.com/taller-erp/taller/internal/rbac"

// Summary is a role row for the administration listing.
type Summary struct {
	rbac.Role
	Permissions int `json:"permissions"`
	ActiveUsers int `json:"active_users"`
}

// Detail is a role together with its linked permissions.
type Detail struct {
	rbac.Role
	Permissions []rbac.RolePermissionView `json:"permissions"`
}

// RoleListFilters controls ordering and visibility of the listing.
type RoleListFilters struct {
	SortBy          string
	SortDir         string
	IncludeInactive bool
}

type assignRequest struct {
	Codes []string `json:"codes" validate:"required,min=1,dive,required,max=100"`
	Note  string   `json:"note" validate:"max=500"`
}

type syncRequest struct {
	Codes []string `json:"codes" validate:"dive,required,max=100"`
}
