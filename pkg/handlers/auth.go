package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/models"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
	"github.com/steeplehq/steeple-engine/pkg/services"
)

// AuthHandler handles signup, login, and the current-user endpoint.
type AuthHandler struct {
	users     repositories.UserRepository
	tenantSvc *services.TenantService
	tokens    *auth.TokenService
	mw        *auth.Middleware
	logger    *zap.Logger
}

// NewAuthHandler creates the auth handler.
func NewAuthHandler(users repositories.UserRepository, tenantSvc *services.TenantService, tokens *auth.TokenService, mw *auth.Middleware, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tenantSvc: tenantSvc, tokens: tokens, mw: mw, logger: logger}
}

// RegisterRoutes registers auth routes on the given mux.
func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signup", h.Signup)
	mux.HandleFunc("POST /api/auth/login", h.Login)
	mux.HandleFunc("GET /api/auth/me", h.mw.RequireAuth(h.Me))
}

type signupRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	ChurchName string `json:"church_name"`
	City       string `json:"city"`
	State      string `json:"state"`
}

type authResponse struct {
	Token  string         `json:"token"`
	User   *models.User   `json:"user"`
	Tenant *models.Tenant `json:"tenant"`
}

// Signup handles POST /api/auth/signup. It creates a tenant with a fresh
// trial and its first (admin) user in one step.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_email", "a valid email is required")
		return
	}
	if len(req.Password) < 8 {
		_ = ErrorResponse(w, http.StatusBadRequest, "weak_password", "password must be at least 8 characters")
		return
	}
	if strings.TrimSpace(req.ChurchName) == "" {
		_ = ErrorResponse(w, http.StatusBadRequest, "missing_church_name", "church name is required")
		return
	}

	if _, err := h.users.GetByEmail(r.Context(), req.Email); err == nil {
		_ = ErrorResponse(w, http.StatusConflict, "email_taken", "an account with this email already exists")
		return
	}

	tenant, err := h.tenantSvc.Create(r.Context(), req.ChurchName, req.City, req.State)
	if err != nil {
		h.logger.Error("Failed to create tenant", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.Error("Failed to hash password", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	user := &models.User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		IsAdmin:      true,
	}
	if err := h.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			_ = ErrorResponse(w, http.StatusConflict, "email_taken", "an account with this email already exists")
			return
		}
		h.logger.Error("Failed to create user", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		h.logger.Error("Failed to issue token", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to create account")
		return
	}

	h.logger.Info("New signup",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("user_id", user.ID.String()))
	_ = WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: user, Tenant: tenant})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := DecodeJSON(r, &req); err != nil {
		_ = ErrorResponse(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)))
	if err != nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		// Same response for unknown email and wrong password.
		_ = ErrorResponse(w, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	tenant, err := h.tenantSvc.Get(r.Context(), user.TenantID)
	if err != nil {
		h.logger.Error("Login for user with missing tenant", zap.String("user_id", user.ID.String()))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	token, err := h.tokens.Generate(user)
	if err != nil {
		h.logger.Error("Failed to issue token", zap.Error(err))
		_ = ErrorResponse(w, http.StatusInternalServerError, "internal_error", "failed to log in")
		return
	}

	if err := h.users.SetLastLogin(r.Context(), user.ID, time.Now().UTC()); err != nil {
		h.logger.Warn("Failed to record last login", zap.Error(err))
	}

	_ = WriteJSON(w, http.StatusOK, authResponse{Token: token, User: user, Tenant: tenant})
}

type meResponse struct {
	User          *models.User   `json:"user"`
	Tenant        *models.Tenant `json:"tenant"`
	TrialActive   bool           `json:"trial_active"`
	DaysRemaining int            `json:"days_remaining"`
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, _ := auth.UserFrom(r.Context())
	tenant, _ := auth.TenantFrom(r.Context())

	_ = WriteJSON(w, http.StatusOK, meResponse{
		User:          user,
		Tenant:        tenant,
		TrialActive:   tenant.IsTrialActive(),
		DaysRemaining: tenant.DaysRemaining(),
	})
}
