package apperrors

import "errors"

var (
	ErrNotFound                 = errors.New("not found")
	ErrConflict                 = errors.New("conflict")
	ErrSyncInProgress           = errors.New("a data refresh is already in progress")
	ErrCredentialsNotConfigured = errors.New("planning center credentials not configured")
	ErrTrialExpired             = errors.New("trial period has expired")
	ErrCredentialsKeyMismatch   = errors.New("tenant credentials were encrypted with a different key")
)
