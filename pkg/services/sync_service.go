package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steeplehq/steeple-engine/pkg/apperrors"
	"github.com/steeplehq/steeple-engine/pkg/etl"
	"github.com/steeplehq/steeple-engine/pkg/models"
	"github.com/steeplehq/steeple-engine/pkg/pco"
	"github.com/steeplehq/steeple-engine/pkg/repositories"
)

// PCOClient is the slice of the API client used by a sync run.
type PCOClient interface {
	GetPages(ctx context.Context, endpoint string, params pco.Params, include []string, perPage int, visit func(*pco.ResourcePage) error) error
	TestConnection(ctx context.Context) (bool, string)
}

// ClientFactory builds an API client from a tenant's decrypted credentials.
type ClientFactory func(appID, secret string) PCOClient

// TableLoader is the slice of the warehouse loader used by a sync run.
type TableLoader interface {
	EnsureSchema(ctx context.Context, schema string) error
	ReplaceTable(ctx context.Context, schema string, t *etl.Table) error
}

// endpointSpec binds one upstream endpoint to its destination table and the
// related resources fetched alongside it.
type endpointSpec struct {
	Endpoint string
	Table    string
	Include  []string
}

var syncEndpoints = []endpointSpec{
	{Endpoint: "/people/v2/people", Table: "pc_people", Include: []string{"emails", "phone_numbers"}},
	{Endpoint: "/check-ins/v2/check_ins", Table: "pc_checkins", Include: []string{"event_times", "locations", "person"}},
	{Endpoint: "/check-ins/v2/events", Table: "pc_events"},
	{Endpoint: "/check-ins/v2/event_times", Table: "pc_event_times", Include: []string{"event"}},
}

// SyncService runs one tenant's data refresh end to end: fetch and flatten
// every endpoint, cross-enrich the tables, and replace the destination
// tables in the tenant's schema.
type SyncService struct {
	tenants   repositories.TenantRepository
	jobs      repositories.SyncJobRepository
	tenantSvc *TenantService
	newClient ClientFactory
	loader    TableLoader
	logger    *zap.Logger
}

// NewSyncService creates the sync orchestrator.
func NewSyncService(
	tenants repositories.TenantRepository,
	jobs repositories.SyncJobRepository,
	tenantSvc *TenantService,
	newClient ClientFactory,
	loader TableLoader,
	logger *zap.Logger,
) *SyncService {
	return &SyncService{
		tenants:   tenants,
		jobs:      jobs,
		tenantSvc: tenantSvc,
		newClient: newClient,
		loader:    loader,
		logger:    logger.Named("sync-service"),
	}
}

// StartJob creates a pending job for a tenant, refusing when another job is
// still pending or running.
func (s *SyncService) StartJob(ctx context.Context, tenant *models.Tenant) (*models.SyncJob, error) {
	if !tenant.HasCredentials() {
		return nil, apperrors.ErrCredentialsNotConfigured
	}

	active, err := s.jobs.HasActive(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	if active {
		return nil, apperrors.ErrSyncInProgress
	}

	job := &models.SyncJob{
		ID:             uuid.New(),
		TenantID:       tenant.ID,
		Status:         models.JobStatusPending,
		TotalEndpoints: len(syncEndpoints),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Run executes a previously created job. Every status change is committed
// immediately so progress survives a crash and the job record never lies
// about where the run got to. Per-endpoint fetch failures degrade to an
// empty table; connectivity, credential, and load failures fail the job.
func (s *SyncService) Run(ctx context.Context, jobID, tenantID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	tenant, err := s.tenants.GetByID(ctx, tenantID)
	if err != nil {
		s.failJob(ctx, job, err.Error())
		return err
	}

	logger := s.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("tenant_id", tenant.ID.String()),
		zap.String("schema", tenant.SchemaName))

	job.MarkStarted()
	job.TotalEndpoints = len(syncEndpoints)
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	logger.Info("Sync started", zap.Int("endpoints", job.TotalEndpoints))

	appID, secret, err := s.tenantSvc.Credentials(tenant)
	if err != nil {
		s.failJob(ctx, job, err.Error())
		return err
	}
	client := s.newClient(appID, secret)

	if ok, detail := client.TestConnection(ctx); !ok {
		err := fmt.Errorf("planning center connection failed: %s", detail)
		s.failJob(ctx, job, err.Error())
		return err
	}

	loc := s.tenantLocation(tenant, logger)
	tables, totalRecords := s.fetchAll(ctx, client, job, loc, logger)

	explodeCheckins(tables)
	enrichTables(tables, logger)

	if err := s.loader.EnsureSchema(ctx, tenant.SchemaName); err != nil {
		s.failJob(ctx, job, err.Error())
		return err
	}

	for _, spec := range syncEndpoints {
		if err := s.loader.ReplaceTable(ctx, tenant.SchemaName, tables[spec.Table]); err != nil {
			s.failJob(ctx, job, fmt.Sprintf("failed to load %s: %v", spec.Table, err))
			return err
		}
	}

	job.MarkCompleted(totalRecords)
	if err := s.jobs.Update(ctx, job); err != nil {
		return err
	}
	if err := s.tenants.SetLastSyncAt(ctx, tenant.ID, time.Now().UTC()); err != nil {
		logger.Warn("Failed to record last sync time", zap.Error(err))
	}

	logger.Info("Sync completed", zap.Int("records", totalRecords))
	return nil
}

// fetchAll pulls every endpoint into an in-memory table and runs the
// per-endpoint transforms on it: timezone normalization, derived date/time
// columns, storage coercion, and a UTC load stamp. Explode and enrich come
// later and must not grow derived columns of their own. An endpoint whose
// fetch fails contributes an empty table instead of failing the run, so one
// flaky product never blocks the rest of the data.
func (s *SyncService) fetchAll(ctx context.Context, client PCOClient, job *models.SyncJob, loc *time.Location, logger *zap.Logger) (map[string]*etl.Table, int) {
	tables := make(map[string]*etl.Table, len(syncEndpoints))
	totalRecords := 0

	for i, spec := range syncEndpoints {
		job.UpdateProgress(spec.Table, i)
		if err := s.jobs.Update(ctx, job); err != nil {
			logger.Warn("Failed to update job progress", zap.Error(err))
		}

		table := etl.NewTable(spec.Table)
		err := client.GetPages(ctx, spec.Endpoint, nil, spec.Include, 0, func(page *pco.ResourcePage) error {
			table.AppendRows(etl.Flatten(page, spec.Endpoint, logger))
			return nil
		})
		if err != nil {
			logger.Warn("Endpoint fetch failed, loading empty table",
				zap.String("endpoint", spec.Endpoint),
				zap.Error(err))
			table = etl.NewTable(spec.Table)
		}

		if !table.Empty() {
			etl.ConvertTimestamps(table, loc, logger)
			etl.AddDerivedDateColumns(table, logger)
			etl.PrepareForStorage(table, logger)
			table.SetColumn("load_timestamp", time.Now().UTC())
			totalRecords += table.Len()
		}

		tables[spec.Table] = table
		job.UpdateProgress(spec.Table, i+1)
		if err := s.jobs.Update(ctx, job); err != nil {
			logger.Warn("Failed to update job progress", zap.Error(err))
		}

		logger.Info("Fetched endpoint",
			zap.String("endpoint", spec.Endpoint),
			zap.String("table", spec.Table),
			zap.Int("rows", table.Len()))
	}

	return tables, totalRecords
}

func (s *SyncService) failJob(ctx context.Context, job *models.SyncJob, message string) {
	job.MarkFailed(message)
	if err := s.jobs.Update(ctx, job); err != nil {
		s.logger.Error("Failed to persist job failure",
			zap.String("job_id", job.ID.String()),
			zap.Error(err))
	}
}

func (s *SyncService) tenantLocation(tenant *models.Tenant, logger *zap.Logger) *time.Location {
	loc, err := time.LoadLocation(tenant.DataTimezone)
	if err != nil {
		logger.Warn("Invalid tenant timezone, falling back to UTC",
			zap.String("timezone", tenant.DataTimezone))
		return time.UTC
	}
	return loc
}

// explodeCheckins turns the check-ins table into one row per attended event
// time so it joins cleanly against event times.
func explodeCheckins(tables map[string]*etl.Table) {
	checkins := tables["pc_checkins"]
	if checkins == nil || checkins.Empty() {
		return
	}
	if col := firstColumn(checkins, "event_time_ids", "EventTime_ids", "event_times_ids"); col != "" {
		etl.ExplodeByColumn(checkins, col)
	}
}

// enrichTables copies descriptive columns across tables: event names and
// frequencies onto event times, then event and person context onto
// check-ins. Missing tables or key columns degrade to skipped enrichment.
func enrichTables(tables map[string]*etl.Table, logger *zap.Logger) {
	events := tables["pc_events"]
	eventTimes := tables["pc_event_times"]
	checkins := tables["pc_checkins"]
	people := tables["pc_people"]

	if eventTimes != nil && events != nil && !events.Empty() {
		join(eventTimes, events,
			[]string{"event_id", "events_id", "event_ids"},
			[]string{"Event_id", "event_id", "id"},
			map[string]string{"name": "event_name", "frequency": "event_frequency"},
			logger)
	}

	if checkins != nil && eventTimes != nil && !eventTimes.Empty() {
		join(checkins, eventTimes,
			[]string{"event_time_ids", "event_time_id", "event_times_ids"},
			[]string{"EventTime_id", "event_time_id", "id"},
			map[string]string{
				"starts_at":       "event_starts_at",
				"event_name":      "event_name",
				"event_frequency": "event_frequency",
			},
			logger)
	}

	if checkins != nil && people != nil && !people.Empty() {
		join(checkins, people,
			[]string{"person_id", "people_id", "persons_id"},
			[]string{"Person_id", "people_id", "id"},
			map[string]string{"gender": "person_gender", "birthdate": "person_birthdate"},
			logger)
	}
}

// join resolves the first present key column on each side and copies only
// the mapped columns the destination does not already have.
func join(dst, src *etl.Table, dstKeys, srcKeys []string, colMap map[string]string, logger *zap.Logger) {
	dstKey := firstColumn(dst, dstKeys...)
	srcKey := firstColumn(src, srcKeys...)
	if dstKey == "" || srcKey == "" {
		logger.Warn("Skipping enrichment, join key not found",
			zap.String("table", dst.Name),
			zap.String("from", src.Name))
		return
	}

	filtered := make(map[string]string, len(colMap))
	for srcCol, dstCol := range colMap {
		if !dst.HasColumn(dstCol) {
			filtered[srcCol] = dstCol
		}
	}
	if len(filtered) == 0 {
		return
	}

	etl.LeftJoin(dst, src, dstKey, srcKey, filtered, logger)
}

func firstColumn(t *etl.Table, candidates ...string) string {
	for _, c := range candidates {
		if t.HasColumn(c) {
			return c
		}
	}
	return ""
}
