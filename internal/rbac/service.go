package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/taller-erp/taller/internal/shared"
)

// RoleInput is the payload for creating or renaming a role.
type RoleInput struct {
	Name        string  `json:"name" validate:"required,max=100"`
	Description *string `json:"description" validate:"omitempty,max=500"`
}

// OverrideInput is the payload for SetOverride.
type OverrideInput struct {
	UserID  int64   `json:"-"`
	Code    string  `json:"-"`
	Granted bool    `json:"granted"`
	Origin  Origin  `json:"origin" validate:"omitempty,max=30"`
	Comment *string `json:"comment" validate:"omitempty,max=500"`
	ActorID int64   `json:"-"`
}

// OverrideChange describes a user override write for notification purposes.
type OverrideChange struct {
	UserID  int64
	Code    string
	Granted bool
	Cleared bool
	ActorID int64
}

// Notifier is told about override changes after they commit.
type Notifier interface {
	NotifyOverrideChange(ctx context.Context, change OverrideChange) error
}

// Codes an actor needs to mutate roles and overrides.
var (
	roleAdminCodes     = []string{shared.PermRolesAdministrar}
	overrideAdminCodes = []string{shared.PermPermisosAsignar, shared.PermRolesAdministrar}
)

// Service orchestrates role-permission assignment and user overrides.
//
// Mutations take an actorID. When it is positive and a guard is configured,
// the actor's own permissions are checked inside the write transaction. The
// zero actor is the system (seeding, CLI) and skips the check.
type Service struct {
	repo     Repository
	guard    *Guard
	audit    AuditSink
	notifier Notifier
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, guard *Guard, audit AuditSink, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, guard: guard, audit: audit, logger: logger}
}

// SetNotifier installs a notifier for override changes. Nil disables it.
func (s *Service) SetNotifier(n Notifier) {
	s.notifier = n
}

func (s *Service) authorize(ctx context.Context, tx Repository, actorID int64, codes []string) error {
	if actorID <= 0 || s.guard == nil {
		return nil
	}
	return s.guard.EnsureAny(ctx, actorSession(actorID), codes, WithRepository(tx))
}

// ListRoles returns all roles ordered by name.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRolePermissions returns the permissions linked to a role, including
// inactive catalog entries, ordered by module and code.
func (s *Service) ListRolePermissions(ctx context.Context, roleID int64) ([]RolePermissionView, error) {
	if _, err := s.repo.GetRole(ctx, roleID); err != nil {
		return nil, err
	}
	perms, err := s.repo.ListRolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}
	views := make([]RolePermissionView, 0, len(perms))
	for _, p := range perms {
		views = append(views, RolePermissionView{Code: p.Code, Name: p.Name, Module: p.Module, Active: p.Active})
	}
	sortByModuleCode(views, func(v RolePermissionView) (string, string) { return v.Module, v.Code })
	return views, nil
}

// CreateRole inserts a new active role. Names are unique and case-sensitive.
func (s *Service) CreateRole(ctx context.Context, in RoleInput, actorID int64) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		var err error
		role, err = tx.CreateRole(ctx, name, trimmed(in.Description))
		return err
	})
	if err != nil {
		return Role{}, err
	}
	logEvent(ctx, s.audit, AuditEvent{UserID: actorID, Action: "ROLE_CREATED", Description: "role " + role.Name, Table: "roles"})
	return role, nil
}

// UpdateRole renames a role and replaces its description.
func (s *Service) UpdateRole(ctx context.Context, id int64, in RoleInput, actorID int64) (Role, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name required", ErrInvalidInput)
	}
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		var err error
		role, err = tx.UpdateRole(ctx, id, name, trimmed(in.Description))
		return err
	})
	if err != nil {
		return Role{}, err
	}
	logEvent(ctx, s.audit, AuditEvent{UserID: actorID, Action: "ROLE_UPDATED", Description: "role " + role.Name, Table: "roles"})
	return role, nil
}

// Assign links every code to the role. The batch is validated against the
// catalog first: any unknown or inactive code rejects the whole batch and
// nothing is written. Codes already linked are left as they are.
func (s *Service) Assign(ctx context.Context, roleID int64, codes []string, actorID int64, note string) ([]RolePermission, error) {
	codes = normalizeCodes(codes)
	if len(codes) == 0 {
		return nil, fmt.Errorf("%w: at least one permission code required", ErrInvalidInput)
	}
	var links []RolePermission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		perms, err := validateBatch(ctx, tx, codes)
		if err != nil {
			return err
		}
		links, err = tx.AttachPermissions(ctx, roleID, permissionIDs(perms))
		return err
	})
	if err != nil {
		return nil, err
	}
	desc := "role " + strconv.FormatInt(roleID, 10) + " += " + strings.Join(codes, ",")
	if note != "" {
		desc += ": " + note
	}
	logEvent(ctx, s.audit, AuditEvent{UserID: actorID, Action: "ROLE_PERMISSIONS_ASSIGNED", Description: desc, Table: "role_permissions"})
	return links, nil
}

// Unassign removes the role link for code. A missing link is not an error;
// an unknown code is.
func (s *Service) Unassign(ctx context.Context, roleID int64, code string, actorID int64) error {
	code = strings.TrimSpace(code)
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		perm, err := findOne(ctx, tx, code)
		if err != nil {
			return err
		}
		removed, err = tx.DetachPermission(ctx, roleID, perm.ID)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		logEvent(ctx, s.audit, AuditEvent{
			UserID:      actorID,
			Action:      "ROLE_PERMISSION_REMOVED",
			Description: "role " + strconv.FormatInt(roleID, 10) + " -= " + code,
			Table:       "role_permissions",
		})
	}
	return nil
}

// SyncRolePermissions makes the role's links equal to codes. Validation is
// the same as Assign and the replacement happens in one transaction.
func (s *Service) SyncRolePermissions(ctx context.Context, roleID int64, codes []string, actorID int64) ([]RolePermissionView, error) {
	codes = normalizeCodes(codes)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetRole(ctx, roleID); err != nil {
			return err
		}
		desired, err := validateBatch(ctx, tx, codes)
		if err != nil {
			return err
		}
		current, err := tx.ListRolePermissions(ctx, roleID)
		if err != nil {
			return err
		}
		keep := make(map[int64]struct{}, len(desired))
		for _, p := range desired {
			keep[p.ID] = struct{}{}
		}
		for _, p := range current {
			if _, ok := keep[p.ID]; ok {
				continue
			}
			if _, err := tx.DetachPermission(ctx, roleID, p.ID); err != nil {
				return err
			}
		}
		_, err = tx.AttachPermissions(ctx, roleID, permissionIDs(desired))
		return err
	})
	if err != nil {
		return nil, err
	}
	logEvent(ctx, s.audit, AuditEvent{
		UserID:      actorID,
		Action:      "ROLE_PERMISSIONS_SYNCED",
		Description: "role " + strconv.FormatInt(roleID, 10) + " = " + strings.Join(codes, ","),
		Table:       "role_permissions",
	})
	return s.ListRolePermissions(ctx, roleID)
}

// DisableRole marks the role inactive. Links are kept so EnableRole restores
// the previous grants. Users holding the role lose its permissions on their
// next check. The warning in the result is informational only.
func (s *Service) DisableRole(ctx context.Context, roleID, actorID int64) (DisableResult, error) {
	var result DisableResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		n, err := tx.CountActiveUsersWithRole(ctx, roleID)
		if err != nil {
			return err
		}
		role, err := tx.SetRoleActive(ctx, roleID, false)
		if err != nil {
			return err
		}
		result.Role = role
		if n > 0 {
			result.Warning = &RoleHasActiveUsersWarning{RoleID: roleID, ActiveUsers: n}
		}
		return nil
	})
	if err != nil {
		return DisableResult{}, err
	}
	if result.Warning != nil {
		s.logger.Warn("rbac role disabled with active users", slog.Int64("role_id", roleID), slog.Int("active_users", result.Warning.ActiveUsers))
	}
	logEvent(ctx, s.audit, AuditEvent{UserID: actorID, Action: "ROLE_DISABLED", Description: "role " + result.Role.Name, Table: "roles"})
	return result, nil
}

// EnableRole marks the role active again.
func (s *Service) EnableRole(ctx context.Context, roleID, actorID int64) (Role, error) {
	var role Role
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, roleAdminCodes); err != nil {
			return err
		}
		var err error
		role, err = tx.SetRoleActive(ctx, roleID, true)
		return err
	})
	if err != nil {
		return Role{}, err
	}
	logEvent(ctx, s.audit, AuditEvent{UserID: actorID, Action: "ROLE_ENABLED", Description: "role " + role.Name, Table: "roles"})
	return role, nil
}

// ListOverrides returns the user's override rows ordered by code.
func (s *Service) ListOverrides(ctx context.Context, userID int64) ([]UserPermission, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	overrides, err := s.repo.ListUserOverrides(ctx, userID)
	if errors.Is(err, ErrOverridesUnavailable) {
		return []UserPermission{}, nil
	}
	return overrides, err
}

// SetOverride upserts the user's override for a code. The origin defaults
// to EXTRA for grants and REVOKED for revocations.
func (s *Service) SetOverride(ctx context.Context, in OverrideInput) (UserPermission, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Origin == "" {
		in.Origin = OriginExtra
		if !in.Granted {
			in.Origin = OriginRevoked
		}
	}
	var saved UserPermission
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, in.ActorID, overrideAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, in.UserID); err != nil {
			return err
		}
		perm, err := findOne(ctx, tx, in.Code)
		if err != nil {
			return err
		}
		row := UserPermission{
			UserID:       in.UserID,
			PermissionID: perm.ID,
			Code:         perm.Code,
			Granted:      in.Granted,
			Origin:       in.Origin,
			Comment:      trimmed(in.Comment),
		}
		if in.ActorID > 0 {
			actor := in.ActorID
			row.GrantedBy = &actor
		}
		saved, err = tx.UpsertUserOverride(ctx, row)
		return err
	})
	if err != nil {
		return UserPermission{}, err
	}
	verb := "granted"
	if !saved.Granted {
		verb = "revoked"
	}
	logEvent(ctx, s.audit, AuditEvent{
		UserID:      in.ActorID,
		Action:      "USER_PERMISSION_SET",
		Description: fmt.Sprintf("user %d %s %s (%s)", in.UserID, verb, saved.Code, saved.Origin),
		Table:       "user_permissions",
	})
	s.notify(ctx, OverrideChange{UserID: in.UserID, Code: saved.Code, Granted: saved.Granted, ActorID: in.ActorID})
	return saved, nil
}

// ClearOverride deletes the user's override for code if there is one.
func (s *Service) ClearOverride(ctx context.Context, userID int64, code string, actorID int64) error {
	code = strings.TrimSpace(code)
	var removed bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, overrideAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		perm, err := findOne(ctx, tx, code)
		if err != nil {
			return err
		}
		removed, err = tx.DeleteUserOverride(ctx, userID, perm.ID)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		logEvent(ctx, s.audit, AuditEvent{
			UserID:      actorID,
			Action:      "USER_PERMISSION_CLEARED",
			Description: fmt.Sprintf("user %d cleared %s", userID, code),
			Table:       "user_permissions",
		})
		s.notify(ctx, OverrideChange{UserID: userID, Code: code, Cleared: true, ActorID: actorID})
	}
	return nil
}

// KeptOrigins returns the override origins that survive a resync. With
// keepManual only manual grants (EXTRA) are kept; revocations, role-sync rows
// and any unrecognised origin are always removed.
func KeptOrigins(keepManual bool) []Origin {
	if keepManual {
		return []Origin{OriginExtra}
	}
	return nil
}

// Resync drops the user's overrides back to pure role defaults and returns
// how many rows were removed.
func (s *Service) Resync(ctx context.Context, userID int64, keepManual bool, actorID int64) (int, error) {
	var removed int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		if err := s.authorize(ctx, tx, actorID, overrideAdminCodes); err != nil {
			return err
		}
		if _, err := tx.GetUser(ctx, userID); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteUserOverridesExcept(ctx, userID, KeptOrigins(keepManual))
		if errors.Is(err, ErrOverridesUnavailable) {
			removed, err = 0, nil
		}
		return err
	})
	if err != nil {
		return 0, err
	}
	logEvent(ctx, s.audit, AuditEvent{
		UserID:      actorID,
		Action:      "USER_PERMISSIONS_RESYNC",
		Description: fmt.Sprintf("user %d removed %d overrides (keep manual: %t)", userID, removed, keepManual),
		Table:       "user_permissions",
	})
	if removed > 0 {
		s.notify(ctx, OverrideChange{UserID: userID, Cleared: true, ActorID: actorID})
	}
	return removed, nil
}

func (s *Service) notify(ctx context.Context, change OverrideChange) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.NotifyOverrideChange(ctx, change); err != nil {
		s.logger.Warn("rbac notify override change", slog.Int64("user_id", change.UserID), slog.Any("error", err))
	}
}

// validateBatch loads every code in one lookup and rejects the batch when
// any is unknown or inactive.
func validateBatch(ctx context.Context, repo Repository, codes []string) ([]Permission, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	perms, err := repo.FindPermissionsByCodes(ctx, codes)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Permission, len(perms))
	for _, p := range perms {
		byCode[p.Code] = p
	}
	var verr BatchValidationError
	out := make([]Permission, 0, len(codes))
	for _, code := range codes {
		p, ok := byCode[code]
		switch {
		case !ok:
			verr.Unknown = append(verr.Unknown, code)
		case !p.Active:
			verr.Inactive = append(verr.Inactive, code)
		default:
			out = append(out, p)
		}
	}
	if len(verr.Unknown) > 0 || len(verr.Inactive) > 0 {
		sort.Strings(verr.Unknown)
		sort.Strings(verr.Inactive)
		return nil, &verr
	}
	return out, nil
}

func findOne(ctx context.Context, repo Repository, code string) (Permission, error) {
	perms, err := repo.FindPermissionsByCodes(ctx, []string{code})
	if err != nil {
		return Permission{}, err
	}
	for _, p := range perms {
		if p.Code == code {
			return p, nil
		}
	}
	return Permission{}, &PermissionNotFoundError{Code: code}
}

func permissionIDs(perms []Permission) []int64 {
	ids := make([]int64, len(perms))
	for i, p := range perms {
		ids[i] = p.ID
	}
	return ids
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}
