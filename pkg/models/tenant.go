package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents one congregation with its own warehouse schema.
// Planning Center credentials are stored encrypted; the service layer
// owns encryption and decryption.
type Tenant struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	City              string     `json:"city"`
	State             string     `json:"state"`
	SchemaName        string     `json:"schema_name"`
	PCOAppIDEncrypted string     `json:"-"`
	PCOSecretEncrypted string    `json:"-"`
	DataTimezone      string     `json:"data_timezone"`
	TrialStartDate    time.Time  `json:"trial_start_date"`
	TrialEndDate      time.Time  `json:"trial_end_date"`
	IsLocked          bool       `json:"is_locked"`
	LastSyncAt        *time.Time `json:"last_sync_at"`
	CreatedAt         time.Time  `json:"created_at"`
}

// HasCredentials reports whether Planning Center credentials are configured.
func (t *Tenant) HasCredentials() bool {
	return t.PCOAppIDEncrypted != "" && t.PCOSecretEncrypted != ""
}

// IsTrialActive reports whether the tenant's trial is still active.
func (t *Tenant) IsTrialActive() bool {
	if t.IsLocked {
		return false
	}
	return time.Now().UTC().Before(t.TrialEndDate)
}

// DaysRemaining returns the number of whole days left in the trial.
func (t *Tenant) DaysRemaining() int {
	if t.IsLocked {
		return 0
	}
	remaining := int(time.Until(t.TrialEndDate).Hours() / 24)
	if remaining < 0 {
		return 0
	}
	return remaining
}
