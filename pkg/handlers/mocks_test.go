package handlers

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/auth"
	"github.com/steeplehq/steeple-engine/pkg/crypto"
	"github.com/steeplehq/steeple-engine/pkg/models"
	"github.com/steeplehq/steeple-engine/pkg/services"
)

type mockUserRepo struct {
	byID    map[uuid.UUID]*models.User
	byEmail map[string]*models.User
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{
		byID:    map[uuid.UUID]*models.User{},
		byEmail: map[string]*models.User{},
	}
}

func (r *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if _, exists := r.byEmail[strings.ToLower(user.Email)]; exists {
		return apperrors.ErrConflict
	}
	r.byID[user.ID] = user
	r.byEmail[strings.ToLower(user.Email)] = user
	return nil
}

func (r *mockUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if u, ok := r.byEmail[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockUserRepo) SetLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type mockTenantRepo struct {
	byID     map[uuid.UUID]*models.Tenant
	bySchema map[string]*models.Tenant
}

func newMockTenantRepo() *mockTenantRepo {
	return &mockTenantRepo{
		byID:     map[uuid.UUID]*models.Tenant{},
		bySchema: map[string]*models.Tenant{},
	}
}

func (r *mockTenantRepo) Create(ctx context.Context, tenant *models.Tenant) error {
	r.byID[tenant.ID] = tenant
	r.bySchema[tenant.SchemaName] = tenant
	return nil
}

func (r *mockTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	if t, ok := r.byID[id]; ok {
		return t, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockTenantRepo) GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error) {
	if t, ok := r.bySchema[schemaName]; ok {
		return t, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockTenantRepo) Update(ctx context.Context, tenant *models.Tenant) error {
	r.byID[tenant.ID] = tenant
	return nil
}

func (r *mockTenantRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, appIDEncrypted, secretEncrypted string) error {
	t, ok := r.byID[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	t.PCOAppIDEncrypted = appIDEncrypted
	t.PCOSecretEncrypted = secretEncrypted
	return nil
}

func (r *mockTenantRepo) SetLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	return nil
}

type mockJobRepo struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*models.SyncJob
	latest *models.SyncJob
}

func newMockJobRepo() *mockJobRepo {
	return &mockJobRepo{byID: map[uuid.UUID]*models.SyncJob{}}
}

func (r *mockJobRepo) Create(ctx context.Context, job *models.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	r.latest = job
	return nil
}

func (r *mockJobRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.byID[id]; ok {
		return j, nil
	}
	return nil, apperrors.ErrNotFound
}

func (r *mockJobRepo) GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return nil, apperrors.ErrNotFound
	}
	return r.latest, nil
}

func (r *mockJobRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.SyncJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var jobs []*models.SyncJob
	for _, j := range r.byID {
		jobs = append(jobs, j)
	}
	return jobs, nil
}

func (r *mockJobRepo) HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.byID {
		if j.TenantID == tenantID && !j.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (r *mockJobRepo) Update(ctx context.Context, job *models.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[job.ID] = job
	return nil
}

// testEnv wires the handler dependency graph against in-memory stubs.
type testEnv struct {
	users     *mockUserRepo
	tenants   *mockTenantRepo
	jobs      *mockJobRepo
	tenantSvc *services.TenantService
	tokens    *auth.TokenService
	mw        *auth.Middleware
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	encryptor, err := crypto.NewCredentialEncryptor("test-passphrase")
	require.NoError(t, err)

	users := newMockUserRepo()
	tenants := newMockTenantRepo()
	tokens := auth.NewTokenService("test-secret", time.Hour)

	return &testEnv{
		users:     users,
		tenants:   tenants,
		jobs:      newMockJobRepo(),
		tenantSvc: services.NewTenantService(tenants, encryptor, 14, zap.NewNop()),
		tokens:    tokens,
		mw:        auth.NewMiddleware(tokens, users, tenants, zap.NewNop()),
	}
}

// seedAccount creates a tenant with one user and returns a valid token.
func (e *testEnv) seedAccount(t *testing.T) (*models.Tenant, *models.User, string) {
	t.Helper()
	tenant, err := e.tenantSvc.Create(context.Background(), "First Church", "Austin", "TX")
	require.NoError(t, err)

	hash, err := auth.HashPassword("password123")
	require.NoError(t, err)
	user := &models.User{
		ID:           uuid.New(),
		TenantID:     tenant.ID,
		Email:        "ada@example.com",
		PasswordHash: hash,
		IsAdmin:      true,
	}
	require.NoError(t, e.users.Create(context.Background(), user))

	token, err := e.tokens.Generate(user)
	require.NoError(t, err)
	return tenant, user, token
}

// seedMember adds a non-admin user to an existing tenant and returns their
// token.
func seedMember(t *testing.T, e *testEnv, tenantID uuid.UUID) string {
	t.Helper()
	user := &models.User{
		ID:       uuid.New(),
		TenantID: tenantID,
		Email:    "member@example.com",
	}
	require.NoError(t, e.users.Create(context.Background(), user))

	token, err := e.tokens.Generate(user)
	require.NoError(t, err)
	return token
}
