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

// GormCredentialRepository stores encrypted credential blobs. Encryption and
// decryption happen in the secrets package; this layer only moves ciphertext.
type GormCredentialRepository struct {
	db *gorm.DB
}

// NewGormCredentialRepository creates a new GormCredentialRepository
func NewGormCredentialRepository(db *gorm.DB) *GormCredentialRepository {
	return &GormCredentialRepository{db: db}
}

// Save stores ciphertext under the given reference
func (r *GormCredentialRepository) Save(ctx context.Context, ref uuid.UUID, ciphertext []byte) error {
	now := time.Now()
	model := models.CredentialModel{
		ID:         ref,
		Ciphertext: ciphertext,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return r.db.WithContext(ctx).Save(&model).Error
}

// Find returns the ciphertext for a reference
func (r *GormCredentialRepository) Find(ctx context.Context, ref uuid.UUID) ([]byte, error) {
	var model models.CredentialModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", ref).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrCredentialsNotFound
		}
		return nil, err
	}
	return model.Ciphertext, nil
}

// Delete removes the ciphertext for a reference
func (r *GormCredentialRepository) Delete(ctx context.Context, ref uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CredentialModel{}, "id = ?", ref).Error
}
