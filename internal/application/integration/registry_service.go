package integration

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// RegistryService manages the integration catalog: registration, lookup,
// reconfiguration and deregistration. Lifecycle transitions (activate,
// deactivate) live in ConnectionService.
type RegistryService struct {
	repo        integration.IntegrationRepository
	credentials integration.CredentialStore
	providers   integration.ProviderRegistry
	logger      *zap.Logger
}

// NewRegistryService creates a new RegistryService
func NewRegistryService(
	repo integration.IntegrationRepository,
	credentials integration.CredentialStore,
	providers integration.ProviderRegistry,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		repo:        repo,
		credentials: credentials,
		providers:   providers,
		logger:      logger,
	}
}

// CreateIntegrationInput carries everything needed to register an integration
type CreateIntegrationInput struct {
	Name        string
	Type        integration.Type
	Provider    string
	Credentials integration.Credentials
	Settings    map[string]string
	SyncPolicy  integration.SyncPolicy
	Webhook     integration.WebhookConfig
	Mapping     integration.DataMapping
	RateLimits  integration.RateLimits
}

// UpdateIntegrationInput patches mutable configuration. Nil fields are left
// unchanged.
type UpdateIntegrationInput struct {
	Name        *string
	Credentials integration.Credentials
	Settings    map[string]string
	SyncPolicy  *integration.SyncPolicy
	Webhook     *integration.WebhookConfig
	Mapping     *integration.DataMapping
	RateLimits  *integration.RateLimits
}

// Create registers a new integration in the INACTIVE state. Credentials are
// encrypted before the aggregate is persisted; the plaintext never outlives
// this call.
func (s *RegistryService) Create(ctx context.Context, input CreateIntegrationInput) (*integration.Integration, error) {
	// the (type, provider) pair must have an adapter before registration
	if _, err := s.providers.Get(input.Type, input.Provider); err != nil {
		return nil, integration.ErrUnsupportedIntegration
	}

	in, err := integration.NewIntegration(input.Name, input.Type, input.Provider, input.SyncPolicy, input.RateLimits)
	if err != nil {
		return nil, err
	}
	in.WebhookConfig = input.Webhook
	in.DataMapping = input.Mapping
	if input.Settings != nil {
		in.Settings = input.Settings
	}

	ref, err := s.credentials.Encrypt(ctx, input.Credentials)
	if err != nil {
		return nil, err
	}
	in.CredentialsRef = ref

	if err := s.repo.Save(ctx, in); err != nil {
		// do not leave orphaned ciphertext behind
		if delErr := s.credentials.Delete(ctx, ref); delErr != nil {
			s.logger.Warn("failed to clean up credentials after save failure",
				zap.String("credentials_ref", ref.String()),
				zap.Error(delErr),
			)
		}
		return nil, err
	}

	s.logger.Info("integration registered",
		zap.String("integration_id", in.ID.String()),
		zap.String("type", in.Type.String()),
		zap.String("provider", in.Provider),
	)
	return in, nil
}

// Get returns a single integration
func (s *RegistryService) Get(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns integrations matching the filter together with the total count
func (s *RegistryService) List(ctx context.Context, filter integration.IntegrationFilter) ([]integration.Integration, int64, error) {
	items, err := s.repo.FindAll(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.repo.Count(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Update applies a configuration patch and re-validates the aggregate.
// Active integrations accept updates; new credentials replace the stored
// ciphertext under a fresh reference.
func (s *RegistryService) Update(ctx context.Context, id uuid.UUID, input UpdateIntegrationInput) (*integration.Integration, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		in.Name = *input.Name
	}
	if input.Settings != nil {
		in.Settings = input.Settings
	}
	if input.SyncPolicy != nil {
		in.SyncPolicy = *input.SyncPolicy
	}
	if input.Webhook != nil {
		in.WebhookConfig = *input.Webhook
	}
	if input.Mapping != nil {
		in.DataMapping = *input.Mapping
	}
	if input.RateLimits != nil {
		in.RateLimits = *input.RateLimits
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	oldRef := in.CredentialsRef
	if input.Credentials != nil {
		ref, err := s.credentials.Encrypt(ctx, input.Credentials)
		if err != nil {
			return nil, err
		}
		in.CredentialsRef = ref
	}

	if err := s.repo.Save(ctx, in); err != nil {
		return nil, err
	}

	if input.Credentials != nil && oldRef != uuid.Nil {
		if err := s.credentials.Delete(ctx, oldRef); err != nil {
			s.logger.Warn("failed to delete superseded credentials",
				zap.String("credentials_ref", oldRef.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("integration updated", zap.String("integration_id", id.String()))
	return in, nil
}

// Deregister removes an integration. Active integrations must be deactivated
// first; the stored ciphertext is deleted along with the record.
func (s *RegistryService) Deregister(ctx context.Context, id uuid.UUID) error {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if in.IsActive() {
		return integration.ErrIntegrationActive
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	if in.CredentialsRef != uuid.Nil {
		if err := s.credentials.Delete(ctx, in.CredentialsRef); err != nil {
			s.logger.Warn("failed to delete credentials on deregister",
				zap.String("integration_id", id.String()),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("integration deregistered", zap.String("integration_id", id.String()))
	return nil
}
