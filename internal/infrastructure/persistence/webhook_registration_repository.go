package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/infrastructure/persistence/models"
)

// GormWebhookRegistrationRepository implements WebhookRegistrationRepository using GORM
type GormWebhookRegistrationRepository struct {
	db *gorm.DB
}

// NewGormWebhookRegistrationRepository creates a new GormWebhookRegistrationRepository
func NewGormWebhookRegistrationRepository(db *gorm.DB) *GormWebhookRegistrationRepository {
	return &GormWebhookRegistrationRepository{db: db}
}

var _ integration.WebhookRegistrationRepository = (*GormWebhookRegistrationRepository)(nil)

// Save creates or updates a registration
func (r *GormWebhookRegistrationRepository) Save(ctx context.Context, reg *integration.WebhookRegistration) error {
	model := models.WebhookRegistrationModelFromDomain(reg)
	return r.db.WithContext(ctx).Save(model).Error
}

// FindByIntegration returns the registration for an integration
func (r *GormWebhookRegistrationRepository) FindByIntegration(ctx context.Context, integrationID uuid.UUID) (*integration.WebhookRegistration, error) {
	var model models.WebhookRegistrationModel
	err := r.db.WithContext(ctx).
		Where("integration_id = ?", integrationID).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrWebhookNotRegistered
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// DeleteByIntegration removes the registration for an integration
func (r *GormWebhookRegistrationRepository) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&models.WebhookRegistrationModel{}, "integration_id = ?", integrationID).Error
}
