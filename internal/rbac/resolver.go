package rbac

import (
	"context"
	"errors"
	"fmt"
)

// Resolver computes effective permissions from the catalog, the user's role
// and the user's overrides. Every call reads the store; nothing is cached.
type Resolver struct {
	repo Repository
}

// NewResolver constructs a Resolver.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Merge combines the active catalog, the role's permission set and the user's
// overrides. An override decides its code in both directions. Codes that are
// inactive in the catalog contribute nothing, whatever the role or override
// says. A code with neither a role link nor an override has no entry and is
// therefore denied.
func Merge(catalog []Permission, base []Permission, overrides []UserPermission) []EffectivePermission {
	inRole := make(map[string]struct{}, len(base))
	for _, p := range base {
		inRole[p.Code] = struct{}{}
	}
	byCode := make(map[string]UserPermission, len(overrides))
	for _, o := range overrides {
		byCode[o.Code] = o
	}

	seen := make(map[string]struct{}, len(catalog))
	out := make([]EffectivePermission, 0, len(base)+len(overrides))
	for _, p := range catalog {
		if !p.Active {
			continue
		}
		if _, dup := seen[p.Code]; dup {
			continue
		}
		seen[p.Code] = struct{}{}

		if o, ok := byCode[p.Code]; ok {
			src := SourceExtra
			if !o.Granted {
				src = SourceRevoked
			}
			out = append(out, EffectivePermission{Code: p.Code, Module: p.Module, Granted: o.Granted, Source: src})
			continue
		}
		if _, ok := inRole[p.Code]; ok {
			out = append(out, EffectivePermission{Code: p.Code, Module: p.Module, Granted: true, Source: SourceRole})
		}
	}
	sortByModuleCode(out, func(e EffectivePermission) (string, string) { return e.Module, e.Code })
	return out
}

// Resolve loads everything needed for userID and merges it. A user without a
// role, or whose role is inactive, resolves from overrides alone. Stores
// without an override table resolve from the role alone.
func (r *Resolver) Resolve(ctx context.Context, userID int64, opts ...Option) (Resolution, error) {
	o := applyOptions(r.repo, opts)
	repo := o.repo

	user, err := repo.GetUser(ctx, userID)
	if err != nil {
		return Resolution{}, err
	}
	catalog, err := repo.ListPermissions(ctx, true)
	if err != nil {
		return Resolution{}, fmt.Errorf("rbac: load catalog: %w", err)
	}

	res := Resolution{UserID: user.ID, UserActive: user.Active, RoleID: user.RoleID}

	var base []Permission
	if user.RoleID != nil {
		role, err := repo.GetRole(ctx, *user.RoleID)
		switch {
		case errors.Is(err, ErrRoleNotFound):
		case err != nil:
			return Resolution{}, fmt.Errorf("rbac: load role: %w", err)
		default:
			res.RoleActive = role.Active
			if role.Active {
				if base, err = repo.ListRolePermissions(ctx, role.ID); err != nil {
					return Resolution{}, fmt.Errorf("rbac: load role permissions: %w", err)
				}
			}
		}
	}

	overrides, err := repo.ListUserOverrides(ctx, user.ID)
	if err != nil && !errors.Is(err, ErrOverridesUnavailable) {
		return Resolution{}, fmt.Errorf("rbac: load overrides: %w", err)
	}

	active := make(map[string]Permission, len(catalog))
	for _, p := range catalog {
		active[p.Code] = p
	}

	res.Base = make([]RolePermissionView, 0, len(base))
	for _, p := range base {
		res.Base = append(res.Base, RolePermissionView{Code: p.Code, Name: p.Name, Module: p.Module, Active: p.Active})
	}
	res.Overrides = make([]OverrideView, 0, len(overrides))
	for _, ov := range overrides {
		p := active[ov.Code]
		res.Overrides = append(res.Overrides, OverrideView{
			Code:    ov.Code,
			Module:  p.Module,
			Granted: ov.Granted,
			Origin:  ov.Origin,
			Comment: ov.Comment,
			Active:  p.Active,
		})
	}
	sortByModuleCode(res.Base, func(v RolePermissionView) (string, string) { return v.Module, v.Code })
	sortByModuleCode(res.Overrides, func(v OverrideView) (string, string) { return v.Module, v.Code })

	res.Effective = Merge(catalog, base, overrides)
	return res, nil
}
