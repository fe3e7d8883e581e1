package rbac

import (
	"sort"
	"time"
)

// Origin records why a user override exists.
type Origin string

const (
	// OriginExtra marks a permission granted manually on top of the role.
	OriginExtra Origin = "EXTRA"
	// OriginRevoked marks a role permission explicitly taken away from the user.
	OriginRevoked Origin = "REVOKED"
	// OriginRoleSync marks rows written when copying a role's set onto a user.
	OriginRoleSync Origin = "ROLE_SYNC"
)

// Source tells where an effective permission came from.
type Source string

const (
	SourceRole    Source = "ROLE"
	SourceExtra   Source = "EXTRA"
	SourceRevoked Source = "REVOKED"
)

// Permission is a catalog entry.
type Permission struct {
	ID          int64   `json:"id"`
	Code        string  `json:"code"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Module      string  `json:"module"`
	Group       *string `json:"group"`
	Active      bool    `json:"active"`
}

// Role represents a high-level permission grouping.
type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RolePermission ties a permission to a role.
type RolePermission struct {
	RoleID       int64     `json:"role_id"`
	PermissionID int64     `json:"permission_id"`
	Code         string    `json:"code"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserPermission is a per-user override layered over the role.
type UserPermission struct {
	UserID       int64     `json:"user_id"`
	PermissionID int64     `json:"permission_id"`
	Code         string    `json:"code"`
	Granted      bool      `json:"granted"`
	Origin       Origin    `json:"origin"`
	Comment      *string   `json:"comment,omitempty"`
	GrantedBy    *int64    `json:"granted_by,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// User is the slice of a user account the resolver needs.
type User struct {
	ID     int64
	RoleID *int64
	Active bool
}

// RolePermissionView is a role-derived permission as shown in a resolution.
type RolePermissionView struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Module string `json:"module"`
	Active bool   `json:"active"`
}

// OverrideView is a user override as shown in a resolution. Active reports
// the catalog flag; overrides on inactive permissions are inert.
type OverrideView struct {
	Code    string  `json:"code"`
	Module  string  `json:"module"`
	Granted bool    `json:"granted"`
	Origin  Origin  `json:"origin"`
	Comment *string `json:"comment,omitempty"`
	Active  bool    `json:"active"`
}

// EffectivePermission is one entry of the computed allow/deny mapping.
type EffectivePermission struct {
	Code    string `json:"code"`
	Module  string `json:"module"`
	Granted bool   `json:"granted"`
	Source  Source `json:"source"`
}

// Resolution is the full result of resolving a user's permissions.
type Resolution struct {
	UserID     int64                 `json:"user_id"`
	UserActive bool                  `json:"user_active"`
	RoleID     *int64                `json:"role_id,omitempty"`
	RoleActive bool                  `json:"role_active"`
	Base       []RolePermissionView  `json:"base"`
	Overrides  []OverrideView        `json:"overrides"`
	Effective  []EffectivePermission `json:"effective"`
}

// Granted reports whether code is granted. Codes with no entry are denied.
func (r Resolution) Granted(code string) bool {
	for _, p := range r.Effective {
		if p.Code == code {
			return p.Granted
		}
	}
	return false
}

// Codes returns the granted codes in resolution order.
func (r Resolution) Codes() []string {
	codes := make([]string, 0, len(r.Effective))
	for _, p := range r.Effective {
		if p.Granted {
			codes = append(codes, p.Code)
		}
	}
	return codes
}

// DisableResult is returned by DisableRole.
type DisableResult struct {
	Role    Role                       `json:"role"`
	Warning *RoleHasActiveUsersWarning `json:"warning,omitempty"`
}

func sortByModuleCode[T any](items []T, key func(T) (string, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		mi, ci := key(items[i])
		mj, cj := key(items[j])
		if mi != mj {
			return mi < mj
		}
		return ci < cj
	})
}
