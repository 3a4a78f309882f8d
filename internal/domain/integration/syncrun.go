package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// SyncRun Ledger
// ---------------------------------------------------------------------------

// RunStatus is the overall outcome of one sync run
type RunStatus string

const (
	// RunStatusSuccess indicates the run completed without batch errors
	RunStatusSuccess RunStatus = "SUCCESS"
	// RunStatusFailed indicates at least one batch error occurred
	RunStatusFailed RunStatus = "FAILED"
)

// DirectionCounts aggregates record outcomes for one direction of a run
type DirectionCounts struct {
	Processed int
	Created   int
	Updated   int
	Errors    int
}

// Add folds another set of counts into this one
func (c *DirectionCounts) Add(other DirectionCounts) {
	c.Processed += other.Processed
	c.Created += other.Created
	c.Updated += other.Updated
	c.Errors += other.Errors
}

// SyncRun is the immutable record of one synchronization attempt.
// Runs are appended to the ledger on completion and never mutated;
// all analytics derive from this ledger.
type SyncRun struct {
	SyncID        uuid.UUID
	IntegrationID uuid.UUID
	Direction     Direction
	Entities      []string
	Status        RunStatus
	Inbound       DirectionCounts
	Outbound      DirectionCounts
	Conflicts     int
	Duplicates    int
	DurationMs    int64
	StartedAt     time.Time
	CompletedAt   time.Time
}

// TotalProcessed returns processed counts across both directions
func (r *SyncRun) TotalProcessed() int {
	return r.Inbound.Processed + r.Outbound.Processed
}

// TotalErrors returns error counts across both directions
func (r *SyncRun) TotalErrors() int {
	return r.Inbound.Errors + r.Outbound.Errors
}

// ---------------------------------------------------------------------------
// Repository
// ---------------------------------------------------------------------------

// SyncRunFilter defines query criteria for the ledger
type SyncRunFilter struct {
	// From filters runs completed at or after this time
	From *time.Time
	// To filters runs completed before this time
	To *time.Time
	// Status filters by run outcome
	Status *RunStatus
	// Limit caps the number of returned runs (0 = no cap)
	Limit int
}

// SyncRunRepository persists the append-only sync run ledger
type SyncRunRepository interface {
	// Append stores a completed run; existing runs are never updated
	Append(ctx context.Context, run *SyncRun) error

	// FindByIntegration returns runs for an integration, newest first
	FindByIntegration(ctx context.Context, integrationID uuid.UUID, filter SyncRunFilter) ([]SyncRun, error)

	// LastSuccessful returns the most recent successful run, or nil if none
	LastSuccessful(ctx context.Context, integrationID uuid.UUID) (*SyncRun, error)

	// CountByIntegration counts runs matching the filter
	CountByIntegration(ctx context.Context, integrationID uuid.UUID, filter SyncRunFilter) (int64, error)
}
