package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// LocalRecord is the engine-side copy of one synchronized record
type LocalRecord struct {
	IntegrationID uuid.UUID
	EntityType    string
	Key           string
	Payload       Record
	ModifiedAt    time.Time
}

// RecordStore persists the local side of synchronized data. Inbound syncs
// write mapped records here; outbound syncs read them in batches.
type RecordStore interface {
	// Find returns the local record for a key, or nil when absent
	Find(ctx context.Context, integrationID uuid.UUID, entityType, key string) (*LocalRecord, error)

	// Save upserts a record and reports whether it was newly created
	Save(ctx context.Context, integrationID uuid.UUID, entityType string, rec Record) (created bool, err error)

	// ListBatch returns one page of records for outbound pushes
	ListBatch(ctx context.Context, integrationID uuid.UUID, entityType string, offset, limit int) (records []Record, hasMore bool, err error)

	// DeleteByIntegration removes all local records for an integration
	DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error
}
