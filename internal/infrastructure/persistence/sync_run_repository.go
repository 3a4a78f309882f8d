package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
)

// GormSyncRunRepository implements SyncRunRepository using GORM.
// The ledger is append-only: rows are inserted once and never touched again.
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

var _ integration.SyncRunRepository = (*GormSyncRunRepository)(nil)

// Append stores a completed run
func (r *GormSyncRunRepository) Append(ctx context.Context, run *integration.SyncRun) error {
	model := models.SyncRunModelFromDomain(run)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByIntegration returns runs for an integration, newest first
func (r *GormSyncRunRepository) FindByIntegration(ctx context.Context, integrationID uuid.UUID, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	query := applySyncRunFilter(r.db.WithContext(ctx), integrationID, filter).
		Order("started_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var runModels []models.SyncRunModel
	if err := query.Find(&runModels).Error; err != nil {
		return nil, err
	}

	runs := make([]integration.SyncRun, len(runModels))
	for i, model := range runModels {
		runs[i] = *model.ToDomain()
	}
	return runs, nil
}

// LastSuccessful returns the most recent successful run, or nil if none exists
func (r *GormSyncRunRepository) LastSuccessful(ctx context.Context, integrationID uuid.UUID) (*integration.SyncRun, error) {
	var model models.SyncRunModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ? AND status = ?", integrationID, integration.RunStatusSuccess).
		Order("started_at DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// CountByIntegration counts runs matching the filter
func (r *GormSyncRunRepository) CountByIntegration(ctx context.Context, integrationID uuid.UUID, filter integration.SyncRunFilter) (int64, error) {
	var count int64
	err := applySyncRunFilter(r.db.WithContext(ctx), integrationID, filter).
		Model(&models.SyncRunModel{}).
		Count(&count).Error
	return count, err
}

func applySyncRunFilter(db *gorm.DB, integrationID uuid.UUID, filter integration.SyncRunFilter) *gorm.DB {
	db = db.Where("integration_id = ?", integrationID)
	if filter.From != nil {
		db = db.Where("completed_at >= ?", *filter.From)
	}
	if filter.To != nil {
		db = db.Where("completed_at < ?", *filter.To)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
