package rbac

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/taller-erp/taller/internal/audit"
	"github.com/taller-erp/taller/internal/platform/httpx"
	"github.com/taller-erp/taller/internal/shared"
)

// Handler exposes the catalog and per-user permission endpoints.
type Handler struct {
	catalog  *Catalog
	service  *Service
	resolver *Resolver
	rbac     RouteGuard
}

// NewHandler builds Handler instance.
func NewHandler(catalog *Catalog, service *Service, resolver *Resolver, rbac RouteGuard) *Handler {
	return &Handler{catalog: catalog, service: service, resolver: resolver, rbac: rbac}
}

// MountRoutes registers catalog and user permission routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermisosVer, shared.PermPermisosAsignar))
		r.Get("/permisos", h.listCatalog)
		r.Get("/usuarios/{id}/permisos", h.resolveUser)
		r.Get("/usuarios/{id}/permisos/overrides", h.listOverrides)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermPermisosAsignar))
		r.Post("/permisos/{code}/estado", h.setCatalogState)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermPermisosAsignar, shared.PermRolesAdministrar))
		r.Put("/usuarios/{id}/permisos/{code}", h.setOverride)
		r.Delete("/usuarios/{id}/permisos/{code}", h.clearOverride)
		r.Post("/usuarios/{id}/permisos/resync", h.resync)
	})
}

// ============================================================================
// CATALOG
// ============================================================================

func (h *Handler) listCatalog(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("activos") == "1"
	perms, err := h.catalog.ListCatalog(r.Context(), !activeOnly)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httpx.JSON(w, http.StatusOK, perms)
}

type catalogStateRequest struct {
	Active *bool `json:"active" validate:"required"`
}

func (h *Handler) setCatalogState(w http.ResponseWriter, r *http.Request) {
	var req catalogStateRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.catalog.SetActive(requestContext(r), chi.URLParam(r, "code"), *req.Active, ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// ============================================================================
// USER PERMISSIONS
// ============================================================================

func (h *Handler) resolveUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.resolver.Resolve(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) listOverrides(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	overrides, err := h.service.ListOverrides(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if overrides == nil {
		overrides = []UserPermission{}
	}
	httpx.JSON(w, http.StatusOK, overrides)
}

func (h *Handler) setOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	var in OverrideInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in.UserID = userID
	in.Code = chi.URLParam(r, "code")
	in.ActorID = ActorID(r)
	saved, err := h.service.SetOverride(requestContext(r), in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, saved)
}

func (h *Handler) clearOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.ClearOverride(requestContext(r), userID, chi.URLParam(r, "code"), ActorID(r)); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resyncRequest struct {
	KeepManual bool `json:"keep_manual"`
}

func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	var req resyncRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	removed, err := h.service.Resync(requestContext(r), userID, req.KeepManual, ActorID(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(chi.URLParam(r, "id")), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

// requestContext carries the client address into audit events.
func requestContext(r *http.Request) context.Context {
	return audit.WithIP(r.Context(), shared.ClientIP(r))
}
