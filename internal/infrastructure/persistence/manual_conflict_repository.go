package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
)

// GormManualConflictRepository implements ManualConflictRepository using GORM
type GormManualConflictRepository struct {
	db *gorm.DB
}

// NewGormManualConflictRepository creates a new GormManualConflictRepository
func NewGormManualConflictRepository(db *gorm.DB) *GormManualConflictRepository {
	return &GormManualConflictRepository{db: db}
}

var _ integration.ManualConflictRepository = (*GormManualConflictRepository)(nil)

// Save creates or updates a conflict record
func (r *GormManualConflictRepository) Save(ctx context.Context, conflict *integration.ManualConflict) error {
	model := models.ManualConflictModelFromDomain(conflict)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds a conflict by its ID
func (r *GormManualConflictRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.ManualConflict, error) {
	var model models.ManualConflictModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrConflictNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindOpenByIntegration lists unresolved conflicts for an integration, oldest first
func (r *GormManualConflictRepository) FindOpenByIntegration(ctx context.Context, integrationID uuid.UUID) ([]integration.ManualConflict, error) {
	var conflictModels []models.ManualConflictModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND resolved = ?", integrationID, false).
		Order("detected_at ASC").
		Find(&conflictModels).Error
	if err != nil {
		return nil, err
	}

	conflicts := make([]integration.ManualConflict, len(conflictModels))
	for i, model := range conflictModels {
		conflicts[i] = *model.ToDomain()
	}
	return conflicts, nil
}

// DeleteByIntegration removes all conflicts for an integration
func (r *GormManualConflictRepository) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.ManualConflictModel{}, "integration_id = ?", integrationID).Error
}
