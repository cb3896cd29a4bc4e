package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/database"
	"github.com/steeplehq/steeple-engine/pkg/models"
)

// TenantRepository defines data access for tenants. Credential fields are
// stored encrypted; repositories never see plaintext credentials.
type TenantRepository interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
	GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error)
	Update(ctx context.Context, tenant *models.Tenant) error
	UpdateCredentials(ctx context.Context, id uuid.UUID, appIDEncrypted, secretEncrypted string) error
	SetLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

type tenantRepository struct {
	db *database.DB
}

// NewTenantRepository creates a new tenant repository.
func NewTenantRepository(db *database.DB) TenantRepository {
	return &tenantRepository{db: db}
}

const tenantColumns = `id, name, city, state, schema_name,
	COALESCE(pco_app_id_encrypted, ''), COALESCE(pco_secret_encrypted, ''),
	data_timezone, trial_start_date, trial_end_date, is_locked, last_sync_at, created_at`

func scanTenant(row pgx.Row) (*models.Tenant, error) {
	var t models.Tenant
	err := row.Scan(
		&t.ID,
		&t.Name,
		&t.City,
		&t.State,
		&t.SchemaName,
		&t.PCOAppIDEncrypted,
		&t.PCOSecretEncrypted,
		&t.DataTimezone,
		&t.TrialStartDate,
		&t.TrialEndDate,
		&t.IsLocked,
		&t.LastSyncAt,
		&t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}
	return &t, nil
}

func (r *tenantRepository) Create(ctx context.Context, tenant *models.Tenant) error {
	query := `
		INSERT INTO tenants (name, city, state, schema_name, pco_app_id_encrypted,
			pco_secret_encrypted, data_timezone, trial_start_date, trial_end_date, is_locked)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9, $10)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query,
		tenant.Name,
		tenant.City,
		tenant.State,
		tenant.SchemaName,
		tenant.PCOAppIDEncrypted,
		tenant.PCOSecretEncrypted,
		tenant.DataTimezone,
		tenant.TrialStartDate,
		tenant.TrialEndDate,
		tenant.IsLocked,
	).Scan(&tenant.ID, &tenant.CreatedAt)
	if err != nil {
		// Unique constraint violation on schema_name (PostgreSQL error code 23505)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}

	return nil
}

func (r *tenantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE id = $1", tenantColumns)
	return scanTenant(r.db.QueryRow(ctx, query, id))
}

func (r *tenantRepository) GetBySchemaName(ctx context.Context, schemaName string) (*models.Tenant, error) {
	query := fmt.Sprintf("SELECT %s FROM tenants WHERE schema_name = $1", tenantColumns)
	return scanTenant(r.db.QueryRow(ctx, query, schemaName))
}

func (r *tenantRepository) Update(ctx context.Context, tenant *models.Tenant) error {
	query := `
		UPDATE tenants
		SET name = $2, city = $3, state = $4, data_timezone = $5, is_locked = $6
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		tenant.ID,
		tenant.Name,
		tenant.City,
		tenant.State,
		tenant.DataTimezone,
		tenant.IsLocked,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *tenantRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, appIDEncrypted, secretEncrypted string) error {
	query := `
		UPDATE tenants
		SET pco_app_id_encrypted = NULLIF($2, ''), pco_secret_encrypted = NULLIF($3, '')
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query, id, appIDEncrypted, secretEncrypted)
	if err != nil {
		return fmt.Errorf("failed to update tenant credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *tenantRepository) SetLastSyncAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx, "UPDATE tenants SET last_sync_at = $2 WHERE id = $1", id, at)
	if err != nil {
		return fmt.Errorf("failed to set last sync time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
