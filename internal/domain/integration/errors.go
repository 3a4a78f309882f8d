package integration

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Sentinel Errors
// ---------------------------------------------------------------------------

var (
	// Registry errors
	ErrIntegrationNotFound    = errors.New("integration: integration not found")
	ErrIntegrationNameEmpty   = errors.New("integration: name must not be empty")
	ErrUnsupportedIntegration = errors.New("integration: type/provider combination is not supported")
	ErrInvalidDirection       = errors.New("integration: invalid sync direction")
	ErrInvalidConflictPolicy  = errors.New("integration: invalid conflict resolution strategy")
	ErrInvalidRateLimits      = errors.New("integration: rate limits must be positive")
	ErrIntegrationActive      = errors.New("integration: integration is already active")
	ErrIntegrationNotActive   = errors.New("integration: integration is not active")

	// Connection errors
	ErrConnectionFailed = errors.New("integration: provider connection failed")
	ErrConnectionClosed = errors.New("integration: connection is closed")

	// Sync errors
	ErrRateLimitExceeded = errors.New("integration: rate limit exceeded")
	ErrSyncCancelled     = errors.New("integration: sync cancelled")

	// Webhook errors
	ErrInvalidSignature     = errors.New("integration: invalid webhook signature")
	ErrWebhookNotRegistered = errors.New("integration: webhook not registered")
	ErrWebhookDisabled      = errors.New("integration: webhooks are disabled for this integration")
	ErrDuplicateEvent       = errors.New("integration: webhook event already processed")

	// Credential errors
	ErrCredentialsNotFound = errors.New("integration: credentials not found")

	// Provider registry errors
	ErrProviderNotRegistered = errors.New("integration: no adapter registered for provider")

	// Conflict errors
	ErrConflictNotFound        = errors.New("integration: manual conflict not found")
	ErrConflictAlreadyResolved = errors.New("integration: conflict already resolved")
	ErrInvalidResolution       = errors.New("integration: invalid conflict resolution choice")
)

// ---------------------------------------------------------------------------
// ValidationError
// ---------------------------------------------------------------------------

// ValidationError reports a record that failed a mapping validation rule.
// The sync engine counts these as batch errors instead of aborting the run.
type ValidationError struct {
	Rule    string
	Field   string
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return fmt.Sprintf("integration: validation rule %q failed on field %q: %s", e.Rule, e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given rule and field
func NewValidationError(rule, field, message string) *ValidationError {
	return &ValidationError{Rule: rule, Field: field, Message: message}
}

// ---------------------------------------------------------------------------
// BatchError
// ---------------------------------------------------------------------------

// BatchError wraps a failure local to one batch of a sync run. Batch errors
// are accumulated into the run's error counts and never abort the run.
type BatchError struct {
	EntityType string
	Batch      int
	Err        error
}

// Error implements the error interface
func (e *BatchError) Error() string {
	return fmt.Sprintf("integration: batch %d of entity %q failed: %v", e.Batch, e.EntityType, e.Err)
}

// Unwrap returns the underlying error
func (e *BatchError) Unwrap() error {
	return e.Err
}
