// Package services holds the business logic between HTTP handlers and
// repositories.
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/crypto"
	"github.com/steeplehq/steeple-engine/pkg/models"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
)

// TenantService manages tenant lifecycle and owns credential encryption.
// Plaintext credentials exist only inside this service and the API client
// built from them; they are never persisted or logged.
type TenantService struct {
	tenants   repositories.TenantRepository
	encryptor *crypto.CredentialEncryptor
	trialDays int
	logger    *zap.Logger
}

// NewTenantService creates the tenant service.
func NewTenantService(tenants repositories.TenantRepository, encryptor *crypto.CredentialEncryptor, trialDays int, logger *zap.Logger) *TenantService {
	return &TenantService{
		tenants:   tenants,
		encryptor: encryptor,
		trialDays: trialDays,
		logger:    logger.Named("tenant-service"),
	}
}

// Create registers a tenant with a derived schema name and a fresh trial.
func (s *TenantService) Create(ctx context.Context, name, city, state string) (*models.Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("tenant name must not be empty")
	}

	now := time.Now().UTC()
	tenant := &models.Tenant{
		ID:             uuid.New(),
		Name:           name,
		City:           strings.TrimSpace(city),
		State:          strings.TrimSpace(state),
		SchemaName:     GenerateSchemaName(name, city, state),
		DataTimezone:   "US/Central",
		TrialStartDate: now,
		TrialEndDate:   now.AddDate(0, 0, s.trialDays),
	}

	// Schema names must be unique; disambiguate on collision.
	if _, err := s.tenants.GetBySchemaName(ctx, tenant.SchemaName); err == nil {
		tenant.SchemaName = tenant.SchemaName + "_" + tenant.ID.String()[:8]
	}

	if err := s.tenants.Create(ctx, tenant); err != nil {
		return nil, err
	}

	s.logger.Info("Created tenant",
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("schema", tenant.SchemaName))
	return tenant, nil
}

// Get returns one tenant by id.
func (s *TenantService) Get(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	return s.tenants.GetByID(ctx, id)
}

// UpdateProfile changes tenant display fields and the reporting timezone.
// The timezone must be a valid IANA zone name.
func (s *TenantService) UpdateProfile(ctx context.Context, tenant *models.Tenant, name, city, state, timezone string) error {
	if name = strings.TrimSpace(name); name != "" {
		tenant.Name = name
	}
	tenant.City = strings.TrimSpace(city)
	tenant.State = strings.TrimSpace(state)

	if timezone != "" {
		if _, err := time.LoadLocation(timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", timezone, err)
		}
		tenant.DataTimezone = timezone
	}

	return s.tenants.Update(ctx, tenant)
}

// SetCredentials encrypts and stores a tenant's Planning Center app id and
// secret.
func (s *TenantService) SetCredentials(ctx context.Context, tenantID uuid.UUID, appID, secret string) error {
	appID = strings.TrimSpace(appID)
	secret = strings.TrimSpace(secret)
	if appID == "" || secret == "" {
		return fmt.Errorf("both application id and secret are required")
	}

	appIDEncrypted, err := s.encryptor.Encrypt(appID)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}
	secretEncrypted, err := s.encryptor.Encrypt(secret)
	if err != nil {
		return fmt.Errorf("failed to encrypt credentials: %w", err)
	}

	if err := s.tenants.UpdateCredentials(ctx, tenantID, appIDEncrypted, secretEncrypted); err != nil {
		return err
	}

	s.logger.Info("Updated tenant credentials", zap.String("tenant_id", tenantID.String()))
	return nil
}

// Credentials decrypts a tenant's stored credential pair.
func (s *TenantService) Credentials(tenant *models.Tenant) (appID, secret string, err error) {
	if !tenant.HasCredentials() {
		return "", "", apperrors.ErrCredentialsNotConfigured
	}

	appID, err = s.encryptor.Decrypt(tenant.PCOAppIDEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", apperrors.ErrCredentialsKeyMismatch, err)
	}
	secret, err = s.encryptor.Decrypt(tenant.PCOSecretEncrypted)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", apperrors.ErrCredentialsKeyMismatch, err)
	}
	return appID, secret, nil
}

// GenerateSchemaName derives a warehouse schema name from tenant identity
// fields: lowercased, non-alphanumeric runs collapsed to single underscores,
// prefixed so the name never starts with a digit.
func GenerateSchemaName(name, city, state string) string {
	var b strings.Builder
	for _, part := range []string{name, city, state} {
		part = sanitizeIdentifierPart(part)
		if part == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		b.WriteString(part)
	}

	schema := b.String()
	if schema == "" {
		schema = "tenant"
	}
	if schema[0] >= '0' && schema[0] <= '9' {
		schema = "t_" + schema
	}
	// Postgres identifiers truncate at 63 bytes; cut early to keep names stable.
	if len(schema) > 60 {
		schema = strings.Trim(schema[:60], "_")
	}
	return schema
}

func sanitizeIdentifierPart(s string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.Trim(b.String(), "_")
}
