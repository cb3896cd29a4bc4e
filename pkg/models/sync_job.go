package models

import (
	"time"

	"github.com/google/uuid"
)

// Sync job statuses. A job is created pending, moves to running when the
// orchestrator picks it up, and ends in exactly one of completed or failed.
// Terminal states are never mutated afterward.
const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// SyncJob tracks one data refresh run for a tenant.
type SyncJob struct {
	ID                 uuid.UUID  `json:"id"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	Status             string     `json:"status"`
	StartedAt          *time.Time `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at"`
	TotalEndpoints     int        `json:"total_endpoints"`
	CompletedEndpoints int        `json:"completed_endpoints"`
	CurrentEndpoint    string     `json:"current_endpoint"`
	RecordsFetched     int        `json:"records_fetched"`
	ErrorMessage       string     `json:"error_message"`
	CreatedAt          time.Time  `json:"created_at"`
}

// IsTerminal reports whether the job has finished, successfully or not.
func (j *SyncJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// MarkStarted transitions the job to running.
func (j *SyncJob) MarkStarted() {
	now := time.Now().UTC()
	j.Status = JobStatusRunning
	j.StartedAt = &now
}

// MarkCompleted transitions the job to completed with the final record count.
func (j *SyncJob) MarkCompleted(recordsFetched int) {
	now := time.Now().UTC()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.RecordsFetched = recordsFetched
}

// MarkFailed transitions the job to failed, capturing the error message.
func (j *SyncJob) MarkFailed(errorMessage string) {
	now := time.Now().UTC()
	j.Status = JobStatusFailed
	j.CompletedAt = &now
	j.ErrorMessage = errorMessage
}

// UpdateProgress records which endpoint is being processed and how many are
// done. CompletedEndpoints never decreases within a run.
func (j *SyncJob) UpdateProgress(currentEndpoint string, completedEndpoints int) {
	j.CurrentEndpoint = currentEndpoint
	if completedEndpoints > j.CompletedEndpoints {
		j.CompletedEndpoints = completedEndpoints
	}
}
