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

// GormIntegrationRepository implements IntegrationRepository using GORM
type GormIntegrationRepository struct {
	db *gorm.DB
}

// NewGormIntegrationRepository creates a new GormIntegrationRepository
func NewGormIntegrationRepository(db *gorm.DB) *GormIntegrationRepository {
	return &GormIntegrationRepository{db: db}
}

var _ integration.IntegrationRepository = (*GormIntegrationRepository)(nil)

// Save creates or updates an integration
func (r *GormIntegrationRepository) Save(ctx context.Context, in *integration.Integration) error {
	model := models.IntegrationModelFromDomain(in)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByID finds an integration by its ID
func (r *GormIntegrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	var model models.IntegrationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrIntegrationNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists integrations matching the filter, newest first
func (r *GormIntegrationRepository) FindAll(ctx context.Context, filter integration.IntegrationFilter) ([]integration.Integration, error) {
	query := applyIntegrationFilter(r.db.WithContext(ctx), filter).Order("created_at DESC")

	if filter.PageSize > 0 {
		page := filter.Page
		if page < 1 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var integrationModels []models.IntegrationModel
	if err := query.Find(&integrationModels).Error; err != nil {
		return nil, err
	}

	integrations := make([]integration.Integration, len(integrationModels))
	for i, model := range integrationModels {
		integrations[i] = *model.ToDomain()
	}
	return integrations, nil
}

// Count counts integrations matching the filter
func (r *GormIntegrationRepository) Count(ctx context.Context, filter integration.IntegrationFilter) (int64, error) {
	var count int64
	err := applyIntegrationFilter(r.db.WithContext(ctx), filter).
		Model(&models.IntegrationModel{}).
		Count(&count).Error
	return count, err
}

// FindDueForSync returns active integrations whose scheduled sync has come
// due. Policy fields live in a JSON column, so the frequency check happens
// in memory over the active set.
func (r *GormIntegrationRepository) FindDueForSync(ctx context.Context, now time.Time) ([]integration.Integration, error) {
	var integrationModels []models.IntegrationModel
	if err := r.db.WithContext(ctx).
		Where("status = ?", integration.StatusActive).
		Find(&integrationModels).Error; err != nil {
		return nil, err
	}

	var due []integration.Integration
	for _, model := range integrationModels {
		in := model.ToDomain()
		if !in.SyncPolicy.Enabled || in.SyncPolicy.Frequency <= 0 {
			continue
		}
		if in.LastSyncAt == nil || !now.Before(in.LastSyncAt.Add(in.SyncPolicy.Frequency)) {
			due = append(due, *in)
		}
	}
	return due, nil
}

// Delete removes an integration record
func (r *GormIntegrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.IntegrationModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return integration.ErrIntegrationNotFound
	}
	return nil
}

func applyIntegrationFilter(db *gorm.DB, filter integration.IntegrationFilter) *gorm.DB {
	if filter.Type != nil {
		db = db.Where("type = ?", *filter.Type)
	}
	if filter.Provider != nil {
		db = db.Where("provider = ?", *filter.Provider)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	return db
}
