package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/pco"
	"github.com/steeplehq/steeple-engine/pkg/services"
)

// DiscoveryFactory builds a metadata discovery helper from a tenant's
// decrypted credentials.
type DiscoveryFactory func(appID, secret string) *pco.MetadataDiscovery

// DiscoveryHandler exposes metadata discovery over the tenant's credentials.
type DiscoveryHandler struct {
	tenantSvc    *services.TenantService
	newDiscovery DiscoveryFactory
	mw           *auth.Middleware
	logger       *zap.Logger
}

// NewDiscoveryHandler creates the discovery handler.
func NewDiscoveryHandler(tenantSvc *services.TenantService, newDiscovery DiscoveryFactory, mw *auth.Middleware, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{tenantSvc: tenantSvc, newDiscovery: newDiscovery, mw: mw, logger: logger}
}

// RegisterRoutes registers discovery routes on the given mux.
func (h *DiscoveryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/discovery/services", h.mw.RequireAuth(h.Services))
	mux.HandleFunc("GET /api/discovery/resources", h.mw.RequireAuth(h.Resources))
	mux.HandleFunc("GET /api/discovery/schema", h.mw.RequireAuth(h.Schema))
}

func (h *DiscoveryHandler) discovery(w http.ResponseWriter, r *http.Request) (*pco.MetadataDiscovery, bool) {
	tenant, _ := auth.TenantFrom(r.Context())
	appID, secret, err := h.tenantSvc.Credentials(tenant)
	if err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "credentials_not_configured", err.Error())
		return nil, false
	}
	return h.newDiscovery(appID, secret), true
}

// Services handles GET /api/discovery/services.
func (h *DiscoveryHandler) Services(w http.ResponseWriter, r *http.Request) {
	discovery, ok := h.discovery(w, r)
	if !ok {
		return
	}

	services := discovery.DiscoverServices(r.Context())
	_ = WriteJSON(w, http.StatusOK, map[string]any{"services": services})
}

// Resources handles GET /api/discovery/resources?service=people.
func (h *DiscoveryHandler) Resources(w http.ResponseWriter, r *http.Request) {
	service := r.URL.Query().Get("service")
	if service == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_service", "service query parameter is required")
		return
	}

	discovery, ok := h.discovery(w, r)
	if !ok {
		return
	}

	resources := discovery.DiscoverResources(r.Context(), service)
	_ = WriteJSON(w, http.StatusOK, map[string]any{"resources": resources})
}

// Schema handles GET /api/discovery/schema?endpoint=/people/v2/people.
func (h *DiscoveryHandler) Schema(w http.ResponseWriter, r *http.Request) {
	endpoint := r.URL.Query().Get("endpoint")
	if endpoint == "" || endpoint[0] != '/' {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_endpoint", "endpoint query parameter must be an absolute API path")
		return
	}

	discovery, ok := h.discovery(w, r)
	if !ok {
		return
	}

	schema, err := h.discoverSchema(r.Context(), discovery, endpoint)
	if err != nil {
		h.logger.Warn("Schema discovery failed", zap.String("endpoint", endpoint), zap.Error(err))
		_ = ErrorResponse(w, http.StatusBadGateway, "discovery_failed", "could not sample the endpoint")
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"schema": schema})
}

func (h *DiscoveryHandler) discoverSchema(ctx context.Context, discovery *pco.MetadataDiscovery, endpoint string) (*pco.ResourceSchema, error) {
	includes, err := discovery.AvailableIncludes(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return discovery.DiscoverSchema(ctx, endpoint, includes)
}
