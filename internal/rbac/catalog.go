package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/singleflight"
)

// PermissionInput describes a catalog entry to create or refresh.
type PermissionInput struct {
	Code        string  `json:"code" validate:"required,max=100"`
	Name        string  `json:"name" validate:"required,max=150"`
	Description *string `json:"description"`
	Module      string  `json:"module" validate:"required,max=50"`
	Group       *string `json:"group"`
}

// Catalog serves the permission catalog. Codes are never hard-deleted.
type Catalog struct {
	repo   Repository
	audit  AuditSink
	logger *slog.Logger
	group  singleflight.Group
}

// NewCatalog constructs a Catalog.
func NewCatalog(repo Repository, audit AuditSink, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{repo: repo, audit: audit, logger: logger}
}

// ListCatalog returns catalog entries ordered by module then code.
// Concurrent identical listings share one repository round-trip.
func (c *Catalog) ListCatalog(ctx context.Context, includeInactive bool) ([]Permission, error) {
	key := "active"
	if includeInactive {
		key = "all"
	}
	// The flight outlives any single caller, so it must not inherit one
	// caller's cancellation.
	flight := c.group.DoChan(key, func() (any, error) {
		return c.repo.ListPermissions(context.WithoutCancel(ctx), includeInactive)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("rbac: list catalog: %w", ctx.Err())
	case res = <-flight:
	}
	if res.Err != nil {
		return nil, fmt.Errorf("rbac: list catalog: %w", res.Err)
	}
	shared := res.Val.([]Permission)
	perms := make([]Permission, len(shared))
	copy(perms, shared)
	sortByModuleCode(perms, func(p Permission) (string, string) { return p.Module, p.Code })
	return perms, nil
}

// GetByCode returns the catalog entry for code, active or not.
func (c *Catalog) GetByCode(ctx context.Context, code string) (Permission, error) {
	code = strings.TrimSpace(code)
	perms, err := c.repo.FindPermissionsByCodes(ctx, []string{code})
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

// EnsurePermission inserts a catalog entry or refreshes its presentation
// fields. Used by seeding and the CLI catalog sync.
func (c *Catalog) EnsurePermission(ctx context.Context, in PermissionInput) (Permission, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Module = strings.TrimSpace(in.Module)
	if in.Code == "" || in.Name == "" || in.Module == "" {
		return Permission{}, fmt.Errorf("%w: code, name and module are required", ErrInvalidInput)
	}
	return c.repo.UpsertPermission(ctx, Permission{
		Code:        in.Code,
		Name:        in.Name,
		Description: in.Description,
		Module:      in.Module,
		Group:       in.Group,
		Active:      true,
	})
}

// SetActive soft-activates or deactivates a catalog entry. Links and
// overrides referencing it are kept but become inert while inactive.
func (c *Catalog) SetActive(ctx context.Context, code string, active bool, actorID int64) (Permission, error) {
	p, err := c.repo.SetPermissionActive(ctx, strings.TrimSpace(code), active)
	if err != nil {
		var notFound *PermissionNotFoundError
		if !errors.As(err, &notFound) {
			c.logger.Error("rbac set permission active", slog.String("code", code), slog.Any("error", err))
		}
		return Permission{}, err
	}
	action := "PERMISSION_DISABLED"
	if active {
		action = "PERMISSION_ENABLED"
	}
	logEvent(ctx, c.audit, AuditEvent{
		UserID:      actorID,
		Action:      action,
		Description: "permission " + p.Code,
		Table:       "permissions",
	})
	return p, nil
}
