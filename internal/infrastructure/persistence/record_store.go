package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
)

// GormRecordStore implements RecordStore using GORM
type GormRecordStore struct {
	db *gorm.DB
}

// NewGormRecordStore creates a new GormRecordStore
func NewGormRecordStore(db *gorm.DB) *GormRecordStore {
	return &GormRecordStore{db: db}
}

var _ integration.RecordStore = (*GormRecordStore)(nil)

// Find returns the local record for a key, or nil when absent
func (r *GormRecordStore) Find(ctx context.Context, integrationID uuid.UUID, entityType, key string) (*integration.LocalRecord, error) {
	var model models.EntityRecordModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND entity_type = ? AND record_key = ?", integrationID, entityType, key).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Save upserts a record and reports whether it was newly created
func (r *GormRecordStore) Save(ctx context.Context, integrationID uuid.UUID, entityType string, rec integration.Record) (bool, error) {
	key := rec.Key()
	modifiedAt := rec.ModifiedAt()
	if modifiedAt.IsZero() {
		modifiedAt = time.Now()
	}

	var existing models.EntityRecordModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND entity_type = ? AND record_key = ?", integrationID, entityType, key).
		First(&existing).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		model := models.EntityRecordModelFromDomain(&integration.LocalRecord{
			IntegrationID: integrationID,
			EntityType:    entityType,
			Key:           key,
			Payload:       rec,
			ModifiedAt:    modifiedAt,
		})
		if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
			return false, err
		}
		return true, nil
	case err != nil:
		return false, err
	}

	existing.PayloadJSON = models.MarshalRecord(rec)
	existing.ModifiedAt = modifiedAt
	existing.UpdatedAt = time.Now()
	if err := r.db.WithContext(ctx).Save(&existing).Error; err != nil {
		return false, err
	}
	return false, nil
}

// ListBatch returns one page of records for outbound pushes
func (r *GormRecordStore) ListBatch(ctx context.Context, integrationID uuid.UUID, entityType string, offset, limit int) ([]integration.Record, bool, error) {
	var recordModels []models.EntityRecordModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND entity_type = ?", integrationID, entityType).
		Order("record_key ASC").
		Offset(offset).
		Limit(limit + 1).
		Find(&recordModels).Error
	if err != nil {
		return nil, false, err
	}

	hasMore := len(recordModels) > limit
	if hasMore {
		recordModels = recordModels[:limit]
	}

	records := make([]integration.Record, len(recordModels))
	for i, model := range recordModels {
		records[i] = model.ToDomain().Payload
	}
	return records, hasMore, nil
}

// DeleteByIntegration removes all local records for an integration
func (r *GormRecordStore) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.EntityRecordModel{}, "integration_id = ?", integrationID).Error
}
