package rbac

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perm(id int64, code, module string, active bool) Permission {
	return Permission{ID: id, Code: code, Name: code, Module: module, Active: active}
}

func override(code string, granted bool, origin Origin) UserPermission {
	return UserPermission{Code: code, Granted: granted, Origin: origin}
}

// ============================================================================
// MERGE
// ============================================================================

func TestMergeOverrideWinsBothWays(t *testing.T) {
	catalog := []Permission{
		perm(1, "ventas.ver", "ventas", true),
		perm(2, "inventario.movimientos", "inventario", true),
		perm(3, "inventario.ver", "inventario", true),
	}
	base := []Permission{catalog[0], catalog[2]}
	overrides := []UserPermission{
		override("ventas.ver", false, OriginRevoked),
		override("inventario.movimientos", true, OriginExtra),
	}

	got := Merge(catalog, base, overrides)

	assert.Equal(t, []EffectivePermission{
		{Code: "inventario.movimientos", Module: "inventario", Granted: true, Source: SourceExtra},
		{Code: "inventario.ver", Module: "inventario", Granted: true, Source: SourceRole},
		{Code: "ventas.ver", Module: "ventas", Granted: false, Source: SourceRevoked},
	}, got)
}

func TestMergeRoleFallbackAndDenyByDefault(t *testing.T) {
	catalog := []Permission{
		perm(1, "clientes.ver", "clientes", true),
		perm(2, "clientes.editar", "clientes", true),
	}
	got := Merge(catalog, []Permission{catalog[0]}, nil)
	res := Resolution{Effective: got}

	assert.True(t, res.Granted("clientes.ver"))
	assert.False(t, res.Granted("clientes.editar"))
	assert.False(t, res.Granted("no.existe"))
	assert.Len(t, got, 1)
}

func TestMergeExcludesInactiveCatalogEntries(t *testing.T) {
	catalog := []Permission{
		perm(1, "facturacion.emitir", "facturacion", false),
		perm(2, "facturacion.ver", "facturacion", false),
		perm(3, "ordenes.ver", "ordenes", true),
	}
	base := []Permission{catalog[0], catalog[2]}
	overrides := []UserPermission{override("facturacion.ver", true, OriginExtra)}

	got := Merge(catalog, base, overrides)

	require.Len(t, got, 1)
	assert.Equal(t, "ordenes.ver", got[0].Code)
}

func TestMergeDedupesAndSortsByModuleThenCode(t *testing.T) {
	catalog := []Permission{
		perm(1, "vehiculos.ver", "taller", true),
		perm(2, "clientes.ver", "taller", true),
		perm(3, "dashboard.ver", "general", true),
		perm(1, "vehiculos.ver", "taller", true),
	}
	got := Merge(catalog, catalog, nil)

	codes := make([]string, len(got))
	for i, e := range got {
		codes[i] = e.Code
	}
	assert.Equal(t, []string{"dashboard.ver", "clientes.ver", "vehiculos.ver"}, codes)
}

func TestMergePrecedenceProperty(t *testing.T) {
	catalog := []Permission{
		perm(1, "a.ver", "a", true),
		perm(2, "b.ver", "b", true),
		perm(3, "c.ver", "c", true),
	}
	roleSets := [][]Permission{nil, {catalog[0]}, {catalog[0], catalog[1]}, catalog}
	for _, base := range roleSets {
		for _, granted := range []bool{true, false} {
			for _, p := range catalog {
				res := Resolution{Effective: Merge(catalog, base, []UserPermission{override(p.Code, granted, OriginExtra)})}
				assert.Equal(t, granted, res.Granted(p.Code), "override on %s must decide it", p.Code)

				inRole := map[string]bool{}
				for _, b := range base {
					inRole[b.Code] = true
				}
				for _, other := range catalog {
					if other.Code != p.Code {
						assert.Equal(t, inRole[other.Code], res.Granted(other.Code), "role fallback for %s", other.Code)
					}
				}
			}
		}
	}
}

// ============================================================================
// RESOLVE
// ============================================================================

func setupResolverRepo() (*mockRepository, Role) {
	repo := newMockRepository()
	repo.addPermission("ventas.ver", "ventas", true)
	repo.addPermission("inventario.ver", "inventario", true)
	repo.addPermission("inventario.movimientos", "inventario", true)
	cashier := repo.addRole("Cajero", true, "ventas.ver", "inventario.ver")
	return repo, cashier
}

func TestResolveCombinesRoleAndOverrides(t *testing.T) {
	repo, cashier := setupResolverRepo()
	repo.addUser(10, int64Ptr(cashier.ID), true)
	repo.addOverride(10, "ventas.ver", false, OriginRevoked)
	repo.addOverride(10, "inventario.movimientos", true, OriginExtra)

	res, err := NewResolver(repo).Resolve(context.Background(), 10)
	require.NoError(t, err)

	assert.True(t, res.UserActive)
	assert.True(t, res.RoleActive)
	assert.Len(t, res.Base, 2)
	assert.Len(t, res.Overrides, 2)
	assert.Equal(t, []string{"inventario.movimientos", "inventario.ver"}, res.Codes())
	assert.False(t, res.Granted("ventas.ver"))
}

func TestResolveWithoutRoleUsesOverridesOnly(t *testing.T) {
	repo, _ := setupResolverRepo()
	repo.addUser(11, nil, true)
	repo.addOverride(11, "inventario.movimientos", true, OriginExtra)

	res, err := NewResolver(repo).Resolve(context.Background(), 11)
	require.NoError(t, err)

	assert.Empty(t, res.Base)
	assert.Equal(t, []string{"inventario.movimientos"}, res.Codes())
}

func TestResolveMissingRoleIsEmptyBase(t *testing.T) {
	repo, _ := setupResolverRepo()
	repo.addUser(12, int64Ptr(999), true)

	res, err := NewResolver(repo).Resolve(context.Background(), 12)
	require.NoError(t, err)
	assert.Empty(t, res.Effective)
}

func TestResolveInactiveRoleContributesNothing(t *testing.T) {
	repo, _ := setupResolverRepo()
	disabled := repo.addRole("Suspendido", false, "ventas.ver")
	repo.addUser(13, int64Ptr(disabled.ID), true)
	repo.addOverride(13, "inventario.ver", true, OriginExtra)

	res, err := NewResolver(repo).Resolve(context.Background(), 13)
	require.NoError(t, err)

	assert.False(t, res.RoleActive)
	assert.Empty(t, res.Base)
	assert.Equal(t, []string{"inventario.ver"}, res.Codes())
}

func TestResolveDeactivatedPermissionDisappears(t *testing.T) {
	repo, cashier := setupResolverRepo()
	repo.addUser(14, int64Ptr(cashier.ID), true)
	repo.addUser(15, nil, true)
	repo.addOverride(15, "ventas.ver", true, OriginExtra)
	resolver := NewResolver(repo)

	_, err := repo.SetPermissionActive(context.Background(), "ventas.ver", false)
	require.NoError(t, err)

	for _, id := range []int64{14, 15} {
		res, err := resolver.Resolve(context.Background(), id)
		require.NoError(t, err)
		assert.False(t, res.Granted("ventas.ver"), "user %d", id)
	}

	res, err := resolver.Resolve(context.Background(), 15)
	require.NoError(t, err)
	require.Len(t, res.Overrides, 1)
	assert.False(t, res.Overrides[0].Active)
}

func TestResolveUnknownUser(t *testing.T) {
	repo, _ := setupResolverRepo()
	_, err := NewResolver(repo).Resolve(context.Background(), 404)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolveTreatsMissingOverrideTableAsEmpty(t *testing.T) {
	repo, cashier := setupResolverRepo()
	repo.addUser(16, int64Ptr(cashier.ID), true)
	repo.overridesUnavailable = true

	res, err := NewResolver(repo).Resolve(context.Background(), 16)
	require.NoError(t, err)
	assert.Empty(t, res.Overrides)
	assert.Equal(t, []string{"inventario.ver", "ventas.ver"}, res.Codes())
}

func TestResolvePropagatesStoreErrors(t *testing.T) {
	repo, cashier := setupResolverRepo()
	repo.addUser(17, int64Ptr(cashier.ID), true)
	repo.listPermissionsError = errors.New("connection refused")

	_, err := NewResolver(repo).Resolve(context.Background(), 17)
	assert.ErrorContains(t, err, "connection refused")
}

func TestResolveReadsThroughRepositoryOption(t *testing.T) {
	primary, _ := setupResolverRepo()
	other, otherRole := setupResolverRepo()
	other.addUser(18, int64Ptr(otherRole.ID), true)

	res, err := NewResolver(primary).Resolve(context.Background(), 18, WithRepository(other))
	require.NoError(t, err)
	assert.True(t, res.Granted("ventas.ver"))
}
