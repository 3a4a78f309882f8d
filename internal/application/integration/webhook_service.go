package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/domain/shared"
)

// WebhookResult reports how one inbound delivery was handled
type WebhookResult struct {
	// Accepted is true when the delivery passed verification and parsing
	Accepted bool
	// Duplicate is true when the event ID was already processed
	Duplicate bool
	// TriggeredSync is true when the event started an inbound sync
	TriggeredSync bool
	// EventID is the provider-assigned event identifier
	EventID string
	// EventType is the normalized provider event name
	EventType string
}

// WebhookService handles inbound provider deliveries: signature verification
// against the registration's shared secret, replay suppression by event ID,
// and triggering an inbound sync restricted to the affected entity types.
type WebhookService struct {
	repo        integration.IntegrationRepository
	webhooks    integration.WebhookRegistrationRepository
	providers   integration.ProviderRegistry
	idempotency shared.IdempotencyStore
	syncs       *SyncService
	replayTTL   time.Duration
	logger      *zap.Logger
}

// NewWebhookService creates a new WebhookService
func NewWebhookService(
	repo integration.IntegrationRepository,
	webhooks integration.WebhookRegistrationRepository,
	providers integration.ProviderRegistry,
	idempotency shared.IdempotencyStore,
	syncs *SyncService,
	replayTTL time.Duration,
	logger *zap.Logger,
) *WebhookService {
	if replayTTL <= 0 {
		replayTTL = shared.DefaultIdempotencyConfig().TTL
	}
	return &WebhookService{
		repo:        repo,
		webhooks:    webhooks,
		providers:   providers,
		idempotency: idempotency,
		syncs:       syncs,
		replayTTL:   replayTTL,
		logger:      logger,
	}
}

// Registration returns the active webhook registration for an integration
func (s *WebhookService) Registration(ctx context.Context, integrationID uuid.UUID) (*integration.WebhookRegistration, error) {
	return s.webhooks.FindByIntegration(ctx, integrationID)
}

// Handle processes one inbound delivery.
//
// Verification failures return ErrInvalidSignature before the payload is
// parsed. Replayed event IDs are acknowledged without any side effect so the
// provider stops retrying. Events that imply remote data changed trigger an
// inbound sync limited to the affected entity types; a sync already in
// flight coalesces instead of failing the delivery.
func (s *WebhookService) Handle(ctx context.Context, integrationID uuid.UUID, payload []byte, headers map[string]string) (*WebhookResult, error) {
	in, err := s.repo.FindByID(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	if !in.IsActive() {
		return nil, integration.ErrIntegrationNotActive
	}
	if !in.WebhookConfig.Enabled {
		return nil, integration.ErrWebhookDisabled
	}

	reg, err := s.webhooks.FindByIntegration(ctx, integrationID)
	if err != nil {
		return nil, err
	}
	adapter, err := s.providers.Get(in.Type, in.Provider)
	if err != nil {
		return nil, err
	}

	if err := adapter.VerifySignature(payload, headers, reg.Secret); err != nil {
		s.logger.Warn("webhook signature verification failed",
			zap.String("integration_id", integrationID.String()),
			zap.String("provider", in.Provider),
		)
		return nil, err
	}

	event, err := adapter.ParseEvent(payload)
	if err != nil {
		return nil, err
	}

	// Replay suppression is scoped per integration: the same provider event
	// ID may legitimately arrive for two different integrations.
	replayKey := fmt.Sprintf("webhook:%s:%s", integrationID, event.EventID)
	fresh, err := s.idempotency.MarkProcessed(ctx, replayKey, s.replayTTL)
	if err != nil {
		return nil, err
	}
	if !fresh {
		s.logger.Info("duplicate webhook event ignored",
			zap.String("integration_id", integrationID.String()),
			zap.String("event_id", event.EventID),
		)
		return &WebhookResult{
			Accepted:  true,
			Duplicate: true,
			EventID:   event.EventID,
			EventType: event.EventType,
		}, nil
	}

	result := &WebhookResult{
		Accepted:  true,
		EventID:   event.EventID,
		EventType: event.EventType,
	}
	if event.RemoteChange {
		// A run already in flight coalesces inside TrySync; the delivery is
		// still acknowledged either way.
		_, started, err := s.syncs.TrySync(ctx, integrationID, SyncInput{
			Direction: integration.DirectionInbound,
			Entities:  event.EntityTypes,
		})
		switch {
		case !started:
		case err == nil:
			result.TriggeredSync = true
		default:
			s.logger.Warn("webhook-triggered sync failed",
				zap.String("integration_id", integrationID.String()),
				zap.String("event_id", event.EventID),
				zap.Error(err),
			)
		}
	}

	s.logger.Info("webhook event processed",
		zap.String("integration_id", integrationID.String()),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.Bool("triggered_sync", result.TriggeredSync),
	)
	return result, nil
}
