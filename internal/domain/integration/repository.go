package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// IntegrationFilter defines query criteria for listing integrations
type IntegrationFilter struct {
	Type     *Type
	Provider *string
	Status   *Status
	Page     int
	PageSize int
}

// IntegrationRepository persists Integration aggregates
type IntegrationRepository interface {
	// Save creates or updates an integration
	Save(ctx context.Context, in *Integration) error

	// FindByID finds an integration or returns ErrIntegrationNotFound
	FindByID(ctx context.Context, id uuid.UUID) (*Integration, error)

	// FindAll lists integrations matching the filter
	FindAll(ctx context.Context, filter IntegrationFilter) ([]Integration, error)

	// Count counts integrations matching the filter
	Count(ctx context.Context, filter IntegrationFilter) (int64, error)

	// FindDueForSync returns active integrations whose sync policy is enabled
	// and whose frequency has elapsed since their last sync
	FindDueForSync(ctx context.Context, now time.Time) ([]Integration, error)

	// Delete removes an integration record
	Delete(ctx context.Context, id uuid.UUID) error
}
