package users

import (
	"fmt"
	"time"

	"github.com/taller-erp/taller/internal/platform/httpx"
)

// User represents a user account for management.
type User struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Name        string     `json:"name"`
	RoleID      *int64     `json:"role_id,omitempty"`
	RoleName    *string    `json:"role_name,omitempty"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// CreateUserInput is the payload for creating an account.
type CreateUserInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Name     string `json:"name" validate:"required,max=150"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	RoleID   *int64 `json:"role_id" validate:"omitempty,gt=0"`
}

// ChangeRoleInput assigns a role, or clears it when RoleID is nil.
type ChangeRoleInput struct {
	RoleID *int64 `json:"role_id" validate:"omitempty,gt=0"`
}

// SetActiveInput toggles the account.
type SetActiveInput struct {
	Active *bool `json:"active" validate:"required"`
}

// ListFilters narrows ListUsers.
type ListFilters struct {
	Search string
	RoleID int64
	Active *bool
	Limit  int
	Offset int
}

var (
	// ErrUserNotFound is returned for unknown user ids.
	ErrUserNotFound = fmt.Errorf("users: not found: %w", httpx.ErrNotFound)
	// ErrEmailTaken is returned when the e-mail is already registered.
	ErrEmailTaken = fmt.Errorf("users: email already registered: %w", httpx.ErrDuplicate)
	// ErrRoleUnavailable is returned when assigning an unknown or inactive role.
	ErrRoleUnavailable = fmt.Errorf("users: role unknown or inactive: %w", httpx.ErrValidation)
	// ErrSelfDeactivation prevents administrators from locking themselves out.
	ErrSelfDeactivation = fmt.Errorf("users: cannot deactivate your own account: %w", httpx.ErrValidation)
)
