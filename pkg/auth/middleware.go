package auth

import (
	"context"
	"net/http"
	"strings"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/models"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
)

type contextKey int

const (
	userKey contextKey = iota
	tenantKey
)

// Middleware resolves the bearer token of each request into the user and
// tenant it belongs to.
type Middleware struct {
	tokens  *TokenService
	users   repositories.UserRepository
	tenants repositories.TenantRepository
	logger  *zap.Logger
}

// NewMiddleware creates the authentication middleware.
func NewMiddleware(tokens *TokenService, users repositories.UserRepository, tenants repositories.TenantRepository, logger *zap.Logger) *Middleware {
	return &Middleware{tokens: tokens, users: users, tenants: tenants, logger: logger.Named("auth")}
}

// RequireAuth rejects requests without a valid bearer token and loads the
// authenticated user and tenant into the request context.
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := m.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := m.users.GetByID(r.Context(), claims.UserID)
		if err != nil {
			m.logger.Warn("Token references unknown user", zap.String("user_id", claims.UserID.String()))
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		tenant, err := m.tenants.GetByID(r.Context(), user.TenantID)
		if err != nil {
			m.logger.Warn("User references unknown tenant", zap.String("tenant_id", user.TenantID.String()))
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userKey, user)
		ctx = context.WithValue(ctx, tenantKey, tenant)
		next(w, r.WithContext(ctx))
	}
}

// RequireAdmin allows only admin users through. Must be stacked inside
// RequireAuth.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFrom(r.Context())
		if !ok || !user.IsAdmin {
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}
		next(w, r)
	}
}

// RequireActiveTrial blocks tenants whose trial has lapsed or whose account
// is locked. Must be stacked inside RequireAuth.
func (m *Middleware) RequireActiveTrial(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenant, ok := TenantFrom(r.Context())
		if !ok || !tenant.IsTrialActive() {
			writeAuthError(w, http.StatusForbidden, "trial expired")
			return
		}
		next(w, r)
	}
}

// UserFrom returns the authenticated user stored in the request context.
func UserFrom(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(userKey).(*models.User)
	return user, ok
}

// TenantFrom returns the authenticated user's tenant.
func TenantFrom(ctx context.Context) (*models.Tenant, bool) {
	tenant, ok := ctx.Value(tenantKey).(*models.Tenant)
	return tenant, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
