package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
	"github.com/steeplehq/steeple-engine/pkg/services"
)

// SyncHandler handles data refresh endpoints.
type SyncHandler struct {
	syncSvc *services.SyncService
	jobs    repositories.SyncJobRepository
	mw      *auth.Middleware
	logger  *zap.Logger
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(syncSvc *services.SyncService, jobs repositories.SyncJobRepository, mw *auth.Middleware, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{syncSvc: syncSvc, jobs: jobs, mw: mw, logger: logger}
}

// RegisterRoutes registers sync routes on the given mux.
func (h *SyncHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/data/refresh", h.mw.RequireAuth(h.mw.RequireActiveTrial(h.Refresh)))
	mux.HandleFunc("GET /api/data/refresh/status", h.mw.RequireAuth(h.Status))
	mux.HandleFunc("GET /api/data/refresh/history", h.mw.RequireAuth(h.History))
}

// Refresh handles POST /api/data/refresh. The job is created synchronously
// and executed in the background; the response carries the pending job so
// the dashboard can start polling.
func (h *SyncHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	job, err := h.syncSvc.StartJob(r.Context(), tenant)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrSyncInProgress):
			_ = ErrorResponse(w, http.StatusConflict, "sync_in_progress", err.Error())
		case errors.Is(err, apperrors.ErrCredentialsNotConfigured):
			_ = ErrorResponse(w, http.StatusBadRequest, "credentials_not_configured", err.Error())
		default:
			h.logger.Error("Failed to start sync job", zap.Error(err))
			_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to start refresh")
		}
		return
	}

	// The run outlives the request; detach it from the request context.
	go func() {
		if err := h.syncSvc.Run(context.Background(), job.ID, tenant.ID); err != nil {
			h.logger.Error("Sync run failed",
				zap.String("job_id", job.ID.String()),
				zap.String("tenant_id", tenant.ID.String()),
				zap.Error(err))
		}
	}()

	_ = WriteJSON(w, http.StatusAccepted, map[string]any{"job": job})
}

// Status handles GET /api/data/refresh/status with the tenant's latest job.
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	job, err := h.jobs.GetLatestByTenant(r.Context(), tenant.ID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			_ = WriteJSON(w, http.StatusOK, map[string]any{"job": nil})
			return
		}
		h.logger.Error("Failed to load sync status", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to load status")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"job": job})
}

// History handles GET /api/data/refresh/history with recent jobs, newest first.
func (h *SyncHandler) History(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	jobs, err := h.jobs.ListByTenant(r.Context(), tenant.ID, limit)
	if err != nil {
		h.logger.Error("Failed to load sync history", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to load history")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}
