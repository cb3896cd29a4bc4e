package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/services"
)

// CredentialTester checks a credential pair against the live API. On success
// it also reports which services the pair can reach.
type CredentialTester func(ctx context.Context, appID, secret string) (bool, string, []string)

// TenantHandler handles tenant profile and credential endpoints.
type TenantHandler struct {
	tenantSvc *services.TenantService
	testCreds CredentialTester
	mw        *auth.Middleware
	logger    *zap.Logger
}

// NewTenantHandler creates the tenant handler.
func NewTenantHandler(tenantSvc *services.TenantService, testCreds CredentialTester, mw *auth.Middleware, logger *zap.Logger) *TenantHandler {
	return &TenantHandler{tenantSvc: tenantSvc, testCreds: testCreds, mw: mw, logger: logger}
}

// RegisterRoutes registers tenant routes on the given mux.
func (h *TenantHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/tenant", h.mw.RequireAuth(h.Get))
	mux.HandleFunc("PUT /api/tenant", h.mw.RequireAuth(h.mw.RequireAdmin(h.Update)))
	mux.HandleFunc("PUT /api/tenant/credentials", h.mw.RequireAuth(h.mw.RequireAdmin(h.SetCredentials)))
	mux.HandleFunc("POST /api/tenant/test-credentials", h.mw.RequireAuth(h.mw.RequireAdmin(h.TestCredentials)))
}

// Get handles GET /api/tenant.
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"tenant":          tenant,
		"has_credentials": tenant.HasCredentials(),
		"trial_active":    tenant.IsTrialActive(),
		"days_remaining":  tenant.DaysRemaining(),
	})
}

type updateTenantRequest struct {
	Name     string `json:"name"`
	City     string `json:"city"`
	State    string `json:"state"`
	Timezone string `json:"timezone"`
}

// Update handles PUT /api/tenant.
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	var req updateTenantRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.tenantSvc.UpdateProfile(r.Context(), tenant, req.Name, req.City, req.State, req.Timezone); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_profile", err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]any{"tenant": tenant})
}

type credentialsRequest struct {
	ApplicationID string `json:"application_id"`
	Secret        string `json:"secret"`
}

// SetCredentials handles PUT /api/tenant/credentials. The request fields are
// never logged.
func (h *TenantHandler) SetCredentials(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	var req credentialsRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	if err := h.tenantSvc.SetCredentials(r.Context(), tenant.ID, req.ApplicationID, req.Secret); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_credentials", err.Error())
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

// TestCredentials handles POST /api/tenant/test-credentials. A body with a
// credential pair tests that pair; an empty body tests the stored pair.
func (h *TenantHandler) TestCredentials(w http.ResponseWriter, r *http.Request) {
	tenant, _ := auth.TenantFrom(r.Context())

	var req credentialsRequest
	_ = DecodeJSON(r, &req)

	appID, secret := req.ApplicationID, req.Secret
	if appID == "" || secret == "" {
		var err error
		appID, secret, err = h.tenantSvc.Credentials(tenant)
		if err != nil {
			_ = ErrorResponse(w, http.StatusBadRequest, "credentials_not_configured", err.Error())
			return
		}
	}

	ok, detail, available := h.testCreds(r.Context(), appID, secret)
	_ = WriteJSON(w, http.StatusOK, map[string]any{
		"connected":          ok,
		"detail":             detail,
		"services_available": available,
	})
}
