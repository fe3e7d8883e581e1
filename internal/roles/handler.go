package roles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taller-erp/taller/internal/audit"
	"github.com/taller-erp/taller/internal/platform/httpx"
	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/shared"
)

// Handler manages role management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.RouteGuard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.RouteGuard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermRolesVer, shared.PermRolesAdministrar))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}", h.showRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermRolesAdministrar))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{id}", h.updateRole)
		r.Post("/roles/{id}/desactivar", h.disableRole)
		r.Post("/roles/{id}/activar", h.enableRole)
		r.Post("/roles/{id}/permisos", h.assignPermissions)
		r.Put("/roles/{id}/permisos", h.syncPermissions)
		r.Delete("/roles/{id}/permisos/{code}", h.unassignPermission)
	})
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := h.service.ListRoles(r.Context(), RoleListFilters{
		SortBy:          q.Get("sort"),
		SortDir:         q.Get("dir"),
		IncludeInactive: q.Get("inactivos") == "1",
	})
	if err != nil {
		h.respondError(w, "list roles failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) showRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	detail, err := h.service.Detail(r.Context(), id)
	if err != nil {
		h.respondError(w, "show role failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in rbac.RoleInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.CreateRole(auditContext(r), in, rbac.ActorID(r))
	if err != nil {
		h.respondError(w, "create role failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var in rbac.RoleInput
	if err := httpx.DecodeAndValidate(r, &in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	role, err := h.service.UpdateRole(auditContext(r), id, in, rbac.ActorID(r))
	if err != nil {
		h.respondError(w, "update role failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) disableRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	result, err := h.service.DisableRole(auditContext(r), id, rbac.ActorID(r))
	if err != nil {
		h.respondError(w, "disable role failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) enableRole(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	role, err := h.service.EnableRole(auditContext(r), id, rbac.ActorID(r))
	if err != nil {
		h.respondError(w, "enable role failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

type batchProblem struct {
	httpx.ProblemDetail
	Unknown  []string `json:"unknown,omitempty"`
	Inactive []string `json:"inactive,omitempty"`
}

func (h *Handler) assignPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	links, err := h.service.Assign(auditContext(r), id, req.Codes, rbac.ActorID(r), req.Note)
	if err != nil {
		h.respondError(w, "assign permissions failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, links)
}

func (h *Handler) syncPermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	var req syncRequest
	if err := httpx.DecodeAndValidate(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	views, err := h.service.SyncRolePermissions(auditContext(r), id, req.Codes, rbac.ActorID(r))
	if err != nil {
		h.respondError(w, "sync permissions failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) unassignPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := roleID(w, r)
	if !ok {
		return
	}
	if err := h.service.Unassign(auditContext(r), id, chi.URLParam(r, "code"), rbac.ActorID(r)); err != nil {
		h.respondError(w, "unassign permission failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// respondError lists offending codes for batch failures; everything else
// goes through the shared problem mapping.
func (h *Handler) respondError(w http.ResponseWriter, msg string, err error) {
	var batch *rbac.BatchValidationError
	if errors.As(err, &batch) {
		httpx.JSON(w, http.StatusBadRequest, batchProblem{
			ProblemDetail: httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()},
			Unknown:       batch.Unknown,
			Inactive:      batch.Inactive,
		})
		return
	}
	if httpx.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error(msg, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func roleID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid id")
		return 0, false
	}
	return id, true
}

func auditContext(r *http.Request) context.Context {
	return audit.WithIP(r.Context(), shared.ClientIP(r))
}
