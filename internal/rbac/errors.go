package rbac

import (
	"fmt"
	"strings"

	"github.com/taller-erp/taller/internal/platform/httpx"
)

var (
	// ErrSessionInvalid is returned by the guard when no authenticated user
	// can be derived from the session.
	ErrSessionInvalid = fmt.Errorf("rbac: session invalid: %w", httpx.ErrUnauthorized)
	// ErrUserNotFound is returned when resolving an unknown user id.
	ErrUserNotFound = fmt.Errorf("rbac: user not found: %w", httpx.ErrNotFound)
	// ErrRoleNotFound is returned for unknown role ids.
	ErrRoleNotFound = fmt.Errorf("rbac: role not found: %w", httpx.ErrNotFound)
	// ErrRoleNameTaken is returned when a role name is already used.
	ErrRoleNameTaken = fmt.Errorf("rbac: role name already exists: %w", httpx.ErrDuplicate)
	// ErrOverridesUnavailable is returned by repositories whose store has no
	// override table. The resolver treats it as an empty override set.
	ErrOverridesUnavailable = fmt.Errorf("rbac: user overrides unavailable")
	// ErrInvalidInput wraps request validation failures.
	ErrInvalidInput = fmt.Errorf("rbac: invalid input: %w", httpx.ErrValidation)
)

// PermissionDeniedError means the user is authenticated but lacks Code.
type PermissionDeniedError struct {
	Code string
}

func (e *PermissionDeniedError) Error() string {
	return "rbac: permission denied: " + e.Code
}

func (e *PermissionDeniedError) Unwrap() error { return httpx.ErrForbidden }

// PermissionNotFoundError means Code is not in the catalog.
type PermissionNotFoundError struct {
	Code string
}

func (e *PermissionNotFoundError) Error() string {
	return "rbac: permission not found: " + e.Code
}

func (e *PermissionNotFoundError) Unwrap() error { return httpx.ErrValidation }

// BatchValidationError lists the codes that made a batch assignment fail.
type BatchValidationError struct {
	Unknown  []string
	Inactive []string
}

// Codes returns every offending code, unknown first.
func (e *BatchValidationError) Codes() []string {
	out := make([]string, 0, len(e.Unknown)+len(e.Inactive))
	out = append(out, e.Unknown...)
	return append(out, e.Inactive...)
}

func (e *BatchValidationError) Error() string {
	var parts []string
	if len(e.Unknown) > 0 {
		parts = append(parts, "unknown: "+strings.Join(e.Unknown, ", "))
	}
	if len(e.Inactive) > 0 {
		parts = append(parts, "inactive: "+strings.Join(e.Inactive, ", "))
	}
	return "rbac: invalid permission codes (" + strings.Join(parts, "; ") + ")"
}

func (e *BatchValidationError) Unwrap() error { return httpx.ErrValidation }

// RoleHasActiveUsersWarning is informational. Disabling still succeeds.
type RoleHasActiveUsersWarning struct {
	RoleID      int64 `json:"role_id"`
	ActiveUsers int   `json:"active_users"`
}

func (w *RoleHasActiveUsersWarning) Error() string {
	return fmt.Sprintf("rbac: role %d still has %d active users", w.RoleID, w.ActiveUsers)
}
