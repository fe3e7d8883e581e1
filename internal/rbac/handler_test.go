package rbac

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taller-erp/taller/internal/shared"
)

// newTestServer mounts the permission routes over a fixture where user 1
// administers permissions and user 2 is a plain cashier.
func newTestServer(t *testing.T) (*serviceFixture, http.Handler) {
	t.Helper()
	f := newServiceFixture(t)
	f.repo.addPermission("permisos.ver", "administracion", true)
	f.repo.state.rolePerms[f.admin.ID][f.repo.permissionByCode("permisos.ver").ID] = time.Now()

	guard := NewGuard(f.repo, f.audit, nil, nil)
	mw := Middleware{Guard: guard}
	handler := NewHandler(NewCatalog(f.repo, f.audit, nil), f.svc, NewResolver(f.repo), mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if raw := r.Header.Get("X-Test-User"); raw != "" {
				sm := shared.NewSessionManager(nil, "taller_session", "secret", time.Hour, false)
				sess, err := sm.Load(r.Context(), r)
				require.NoError(t, err)
				id, _ := json.Number(raw).Int64()
				sess.SetUser(id)
				r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			}
			next.ServeHTTP(w, r)
		})
	})
	handler.MountRoutes(r)
	return f, r
}

func doRequest(h http.Handler, method, target, user, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCatalogEndpointFiltersActive(t *testing.T) {
	_, h := newTestServer(t)

	rr := doRequest(h, http.MethodGet, "/permisos?activos=1", "1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var perms []Permission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &perms))
	for _, p := range perms {
		assert.True(t, p.Active, p.Code)
	}
	assert.NotContains(t, codesOf(perms), "facturacion.emitir")

	rr = doRequest(h, http.MethodGet, "/permisos", "1", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &perms))
	assert.Contains(t, codesOf(perms), "facturacion.emitir")
}

func TestRoutesMapGuardErrors(t *testing.T) {
	_, h := newTestServer(t)

	rr := doRequest(h, http.MethodGet, "/permisos", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = doRequest(h, http.MethodGet, "/permisos", "2", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.NotContains(t, rr.Body.String(), "permisos.ver")

	rr = doRequest(h, http.MethodGet, "/permisos", "404", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestResolveEndpoint(t *testing.T) {
	f, h := newTestServer(t)
	f.repo.addOverride(2, "ventas.ver", false, OriginRevoked)

	rr := doRequest(h, http.MethodGet, "/usuarios/2/permisos", "1", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var res Resolution
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, int64(2), res.UserID)
	assert.False(t, res.Granted("ventas.ver"))
	require.Len(t, res.Overrides, 1)
	assert.Equal(t, OriginRevoked, res.Overrides[0].Origin)

	assert.Equal(t, http.StatusNotFound, doRequest(h, http.MethodGet, "/usuarios/99/permisos", "1", "").Code)
	assert.Equal(t, http.StatusBadRequest, doRequest(h, http.MethodGet, "/usuarios/abc/permisos", "1", "").Code)
}

func TestOverrideEndpoints(t *testing.T) {
	f, h := newTestServer(t)

	rr := doRequest(h, http.MethodPut, "/usuarios/2/permisos/inventario.movimientos", "1", `{"granted":true,"comment":"cubre turno"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var saved UserPermission
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &saved))
	assert.Equal(t, OriginExtra, saved.Origin)
	require.NotNil(t, saved.Comment)
	assert.Equal(t, "cubre turno", *saved.Comment)

	rr = doRequest(h, http.MethodPut, "/usuarios/2/permisos/bogus.code", "1", `{"granted":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodPut, "/usuarios/2/permisos/ventas.ver", "1", `{"granted":true,"extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodDelete, "/usuarios/2/permisos/inventario.movimientos", "1", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	f.repo.addOverride(2, "ventas.ver", false, OriginRevoked)
	rr = doRequest(h, http.MethodPost, "/usuarios/2/permisos/resync", "1", `{"keep_manual":true}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"removed":1}`, rr.Body.String())

	rr = doRequest(h, http.MethodPost, "/usuarios/2/permisos/resync", "2", "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCatalogStateEndpoint(t *testing.T) {
	f, h := newTestServer(t)

	rr := doRequest(h, http.MethodPost, "/permisos/ventas.ver/estado", "1", `{"active":false}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, f.repo.permissionByCode("ventas.ver").Active)

	rr = doRequest(h, http.MethodPost, "/permisos/ventas.ver/estado", "1", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doRequest(h, http.MethodPost, "/permisos/nope.nope/estado", "1", `{"active":true}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestMiddlewarePassesThroughWithoutCodes(t *testing.T) {
	mw := Middleware{}
	called := false
	h := mw.RequireAll(" ", "")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, called)
}
