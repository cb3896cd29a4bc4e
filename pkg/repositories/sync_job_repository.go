package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/database"
	"github.com/steeplehq/steeple-engine/pkg/models"
)

// SyncJobRepository defines data access for sync jobs. The orchestrator is
// the only writer for a given job id once the run begins.
type SyncJobRepository interface {
	Create(ctx context.Context, job *models.SyncJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error)
	GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.SyncJob, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.SyncJob, error)
	HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error)
	Update(ctx context.Context, job *models.SyncJob) error
}

type syncJobRepository struct {
	db *database.DB
}

// NewSyncJobRepository creates a new sync job repository.
func NewSyncJobRepository(db *database.DB) SyncJobRepository {
	return &syncJobRepository{db: db}
}

const syncJobColumns = `id, tenant_id, status, started_at, completed_at,
	COALESCE(total_endpoints, 0), completed_endpoints, COALESCE(current_endpoint, ''),
	records_fetched, COALESCE(error_message, ''), created_at`

func scanSyncJob(row pgx.Row) (*models.SyncJob, error) {
	var j models.SyncJob
	err := row.Scan(
		&j.ID,
		&j.TenantID,
		&j.Status,
		&j.StartedAt,
		&j.CompletedAt,
		&j.TotalEndpoints,
		&j.CompletedEndpoints,
		&j.CurrentEndpoint,
		&j.RecordsFetched,
		&j.ErrorMessage,
		&j.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan sync job: %w", err)
	}
	return &j, nil
}

func (r *syncJobRepository) Create(ctx context.Context, job *models.SyncJob) error {
	if job.Status == "" {
		job.Status = models.JobStatusPending
	}

	query := `
		INSERT INTO sync_jobs (tenant_id, status)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, job.TenantID, job.Status).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	return nil
}

func (r *syncJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncJob, error) {
	query := fmt.Sprintf("SELECT %s FROM sync_jobs WHERE id = $1", syncJobColumns)
	return scanSyncJob(r.db.QueryRow(ctx, query, id))
}

func (r *syncJobRepository) GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.SyncJob, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sync_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, syncJobColumns)
	return scanSyncJob(r.db.QueryRow(ctx, query, tenantID))
}

func (r *syncJobRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*models.SyncJob, error) {
	if limit <= 0 {
		limit = 10
	}

	query := fmt.Sprintf(`
		SELECT %s FROM sync_jobs
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, syncJobColumns)

	rows, err := r.db.Query(ctx, query, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.SyncJob
	for rows.Next() {
		job, err := scanSyncJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func (r *syncJobRepository) HasActive(ctx context.Context, tenantID uuid.UUID) (bool, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM sync_jobs WHERE tenant_id = $1 AND status IN ($2, $3)",
		tenantID, models.JobStatusPending, models.JobStatusRunning,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to count active sync jobs: %w", err)
	}
	return count > 0, nil
}

func (r *syncJobRepository) Update(ctx context.Context, job *models.SyncJob) error {
	query := `
		UPDATE sync_jobs
		SET status = $2, started_at = $3, completed_at = $4, total_endpoints = $5,
			completed_endpoints = $6, current_endpoint = NULLIF($7, ''),
			records_fetched = $8, error_message = NULLIF($9, '')
		WHERE id = $1`

	tag, err := r.db.Exec(ctx, query,
		job.ID,
		job.Status,
		job.StartedAt,
		job.CompletedAt,
		job.TotalEndpoints,
		job.CompletedEndpoints,
		job.CurrentEndpoint,
		job.RecordsFetched,
		job.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to update sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}
