package audithttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/taller-erp/taller/internal/audit"
	"github.com/taller-erp/taller/internal/platform/httpx"
	"github.com/taller-erp/taller/internal/rbac"
	"github.com/taller-erp/taller/internal/shared"
)

const (
	maxPageSize       = 50
	maxDateRangeHours = 24 * 90
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.TimelineRow, error)
}

// Authorizer checks the session against a permission code.
type Authorizer interface {
	EnsurePermission(ctx context.Context, sess rbac.Session, code string, opts ...rbac.Option) error
}

// Handler serves the audit log listing.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	guard   Authorizer
}

// NewHandler builds the audit handler.
func NewHandler(logger *slog.Logger, service TimelineService, guard Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, guard: guard}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "load audit timeline", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if !h.authorize(w, r) {
		return
	}
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.handleServerError(w, "export audit timeline", err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.handleServerError(w, "encode csv", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"bitacora.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) bool {
	err := h.guard.EnsurePermission(r.Context(), rbac.CurrentSession(r), shared.PermBitacoraVer)
	if err == nil {
		return true
	}
	var denied *rbac.PermissionDeniedError
	if !errors.As(err, &denied) && !errors.Is(err, rbac.ErrSessionInvalid) {
		h.logger.Error("audit authorize", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
	return false
}

// parseFilters reads from/to (YYYY-MM-DD, inclusive), usuario, accion,
// tabla and paging parameters.
func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	var filters audit.TimelineFilters

	if v := strings.TrimSpace(q.Get("from")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filters, validationError("from")
		}
		filters.From = t
	}
	if v := strings.TrimSpace(q.Get("to")); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return filters, validationError("to")
		}
		filters.To = t.Add(24 * time.Hour)
	}
	if !filters.From.IsZero() && !filters.To.IsZero() {
		if !filters.From.Before(filters.To) {
			return filters, validationError("range")
		}
		if filters.To.Sub(filters.From) > maxDateRangeHours*time.Hour {
			return filters, validationError("range")
		}
	}
	if v := strings.TrimSpace(q.Get("usuario")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return filters, validationError("usuario")
		}
		filters.UserID = id
	}
	filters.Action = strings.TrimSpace(q.Get("accion"))
	filters.Table = strings.TrimSpace(q.Get("tabla"))

	page, perPage := shared.PageFromRequest(r)
	if perPage > maxPageSize {
		perPage = maxPageSize
	}
	filters.Page = page
	filters.PageSize = perPage
	return filters, nil
}

func (h *Handler) handleServerError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.Any("error", err))
	httpx.RespondError(w, err)
}

func validationError(field string) error {
	return fmt.Errorf("%w: invalid %s", httpx.ErrValidation, field)
}
