package users

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/shared"
)

// grantGuard admits a request only when every required code (or, for
// RequireAny, at least one) is in held.
type grantGuard struct {
	held map[string]bool
}

func (g grantGuard) RequireAny(perms ...string) func(http.Handler) http.Handler {
	return g.gate(perms, false)
}

func (g grantGuard) RequireAll(perms ...string) func(http.Handler) http.Handler {
	return g.gate(perms, true)
}

func (g grantGuard) gate(perms []string, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			matched := 0
			for _, p := range perms {
				if g.held[p] {
					matched++
				}
			}
			if (all && matched != len(perms)) || (!all && matched == 0) {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

var _ rbac.RouteGuard = grantGuard{}

func newTestRouter(codes ...string) (*mockRepository, http.Handler) {
	repo, _, svc := newTestService()
	held := map[string]bool{}
	for _, c := range codes {
		held[c] = true
	}
	r := chi.NewRouter()
	NewHandler(nil, svc, grantGuard{held: held}).MountRoutes(r)
	return repo, r
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestListUsersRequiresViewPermission(t *testing.T) {
	_, h := newTestRouter()
	rr := serve(h, http.MethodGet, "/usuarios", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)

	repo, h := newTestRouter(shared.PermUsuariosVer)
	_, _ = repo.CreateUser(context.Background(), "ana@taller.mx", "Ana", "x", nil)

	rr = serve(h, http.MethodGet, "/usuarios?q=ana&rol=1&activos=0", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var body listResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Len(t, body.Users, 1)
	assert.Equal(t, "ana", repo.lastFilters.Search)
	assert.Equal(t, int64(1), repo.lastFilters.RoleID)
	require.NotNil(t, repo.lastFilters.Active)
	assert.False(t, *repo.lastFilters.Active)
}

func TestListUsersRejectsBadRoleFilter(t *testing.T) {
	_, h := newTestRouter(shared.PermUsuariosAdministrar)
	rr := serve(h, http.MethodGet, "/usuarios?rol=abc", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestShowUser(t *testing.T) {
	repo, h := newTestRouter(shared.PermUsuariosVer)
	id, _ := repo.CreateUser(context.Background(), "luis@taller.mx", "Luis", "x", nil)

	rr := serve(h, http.MethodGet, "/usuarios/1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var user User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, id, user.ID)

	assert.Equal(t, http.StatusNotFound, serve(h, http.MethodGet, "/usuarios/99", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(h, http.MethodGet, "/usuarios/x", "").Code)
}

func TestCreateUserNeedsAdminPermission(t *testing.T) {
	payload := `{"email":"eva@taller.mx","name":"Eva","password":"secreto123","role_id":1}`

	_, h := newTestRouter(shared.PermUsuariosVer)
	assert.Equal(t, http.StatusForbidden, serve(h, http.MethodPost, "/usuarios", payload).Code)

	_, h = newTestRouter(shared.PermUsuariosAdministrar)
	rr := serve(h, http.MethodPost, "/usuarios", payload)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = serve(h, http.MethodPost, "/usuarios", payload)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(h, http.MethodPost, "/usuarios", `{"email":"no-es-correo","name":"Eva","password":"secreto123"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestChangeRoleNeedsRoleOrPermissionAdmin(t *testing.T) {
	repo, h := newTestRouter(shared.PermUsuariosAdministrar)
	id, _ := repo.CreateUser(context.Background(), "yo@taller.mx", "Yo", "x", nil)

	rr := serve(h, http.MethodPut, "/usuarios/1/rol", `{"role_id":1}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Nil(t, repo.users[id].RoleID)

	for _, code := range []string{shared.PermRolesAdministrar, shared.PermPermisosAsignar} {
		_, h = newTestRouter(code)
		rr = serve(h, http.MethodPut, "/usuarios/1/rol", `{"role_id":1}`)
		assert.Equal(t, http.StatusForbidden, rr.Code, code)
	}

	repo, h = newTestRouter(shared.PermUsuariosAdministrar, shared.PermPermisosAsignar)
	id, _ = repo.CreateUser(context.Background(), "yo@taller.mx", "Yo", "x", nil)
	rr = serve(h, http.MethodPut, "/usuarios/1/rol", `{"role_id":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, repo.users[id].RoleID)
}

func TestChangeRoleAndStatusRoutes(t *testing.T) {
	repo, h := newTestRouter(shared.PermUsuariosAdministrar, shared.PermRolesAdministrar)
	id, _ := repo.CreateUser(context.Background(), "caja@taller.mx", "Caja", "x", nil)

	rr := serve(h, http.MethodPut, "/usuarios/1/rol", `{"role_id":1}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, repo.users[id].RoleID)
	assert.Equal(t, int64(1), *repo.users[id].RoleID)

	rr = serve(h, http.MethodPut, "/usuarios/1/rol", `{"role_id":2}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, "/usuarios/1/estado", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(h, http.MethodPost, "/usuarios/1/estado", `{"active":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, repo.users[id].IsActive)
}
