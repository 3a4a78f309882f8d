package integration

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// RateLimiter is the per-integration permit source consulted by the sync
// engine and managed over the integration lifecycle.
type RateLimiter interface {
	Configure(id uuid.UUID, limits integration.RateLimits)
	Remove(id uuid.UUID)
	TryAcquire(id uuid.UUID) bool
	Headroom(id uuid.UUID) (minute, hour int)
}

// SyncCanceler requests cooperative cancellation of an in-flight sync run
type SyncCanceler interface {
	Cancel(integrationID uuid.UUID) bool
}

// ConnectionService owns the live provider sessions. Exactly one Connection
// exists per active integration; other components borrow it through
// Connection() and never close it themselves.
type ConnectionService struct {
	repo            integration.IntegrationRepository
	credentials     integration.CredentialStore
	providers       integration.ProviderRegistry
	webhooks        integration.WebhookRegistrationRepository
	limiter         RateLimiter
	callbackBaseURL string
	logger          *zap.Logger

	mu          sync.RWMutex
	connections map[uuid.UUID]integration.Connection

	canceler SyncCanceler
}

// NewConnectionService creates a new ConnectionService
func NewConnectionService(
	repo integration.IntegrationRepository,
	credentials integration.CredentialStore,
	providers integration.ProviderRegistry,
	webhooks integration.WebhookRegistrationRepository,
	limiter RateLimiter,
	callbackBaseURL string,
	logger *zap.Logger,
) *ConnectionService {
	return &ConnectionService{
		repo:            repo,
		credentials:     credentials,
		providers:       providers,
		webhooks:        webhooks,
		limiter:         limiter,
		callbackBaseURL: callbackBaseURL,
		logger:          logger,
		connections:     make(map[uuid.UUID]integration.Connection),
	}
}

// SetCanceler wires the sync engine's cancellation hook. Called once during
// startup; not safe to change while syncs run.
func (s *ConnectionService) SetCanceler(c SyncCanceler) {
	s.canceler = c
}

// Test performs a non-mutating connectivity probe. Works for inactive
// integrations; nothing is persisted.
func (s *ConnectionService) Test(ctx context.Context, id uuid.UUID) error {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	adapter, err := s.providers.Get(in.Type, in.Provider)
	if err != nil {
		return err
	}
	creds, err := s.credentials.Decrypt(ctx, in.CredentialsRef)
	if err != nil {
		return err
	}
	return adapter.TestConnection(ctx, creds)
}

// Activate brings an integration online: probe, connect, optionally register
// the provider webhook, then mark active. A failed probe marks the
// integration ERROR; a failure after the probe rolls the earlier steps back
// and records the cause on the aggregate's health state.
func (s *ConnectionService) Activate(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.IsActive() {
		return nil, integration.ErrIntegrationActive
	}

	adapter, err := s.providers.Get(in.Type, in.Provider)
	if err != nil {
		return nil, err
	}
	creds, err := s.credentials.Decrypt(ctx, in.CredentialsRef)
	if err != nil {
		return nil, err
	}

	if err := adapter.TestConnection(ctx, creds); err != nil {
		in.MarkError(err.Error())
		s.persistActivationFailure(ctx, in, err)
		return nil, err
	}

	conn, err := adapter.Connect(ctx, creds)
	if err != nil {
		s.recordActivationFailure(ctx, in, err)
		return nil, err
	}

	if in.WebhookConfig.Enabled {
		callbackURL := s.callbackURL(in)
		registrationID, secret, err := adapter.RegisterWebhook(ctx, creds, callbackURL, in.WebhookConfig.Events)
		if err != nil {
			_ = conn.Close(ctx)
			s.recordActivationFailure(ctx, in, err)
			return nil, err
		}
		reg := integration.NewWebhookRegistration(in.ID, callbackURL, secret, in.WebhookConfig.Events, registrationID)
		if err := s.webhooks.Save(ctx, reg); err != nil {
			_ = adapter.UnregisterWebhook(ctx, creds, registrationID)
			_ = conn.Close(ctx)
			s.recordActivationFailure(ctx, in, err)
			return nil, err
		}
	}

	if err := in.Activate(); err != nil {
		s.teardownWebhook(ctx, in, adapter, creds)
		_ = conn.Close(ctx)
		return nil, err
	}
	if err := s.repo.Save(ctx, in); err != nil {
		s.teardownWebhook(ctx, in, adapter, creds)
		_ = conn.Close(ctx)
		return nil, err
	}

	s.limiter.Configure(in.ID, in.RateLimits)
	s.mu.Lock()
	s.connections[in.ID] = conn
	s.mu.Unlock()

	s.logger.Info("integration activated",
		zap.String("integration_id", in.ID.String()),
		zap.String("provider", in.Provider),
		zap.Bool("webhook_registered", in.WebhookConfig.Enabled),
	)
	return in, nil
}

// Deactivate takes an integration offline. An in-flight sync is asked to
// stop cooperatively; provider webhook and session are torn down afterwards.
func (s *ConnectionService) Deactivate(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !in.IsActive() && in.Status != integration.StatusError {
		return nil, integration.ErrIntegrationNotActive
	}

	if s.canceler != nil {
		if s.canceler.Cancel(id) {
			s.logger.Info("requested cancellation of in-flight sync",
				zap.String("integration_id", id.String()),
			)
		}
	}

	adapter, err := s.providers.Get(in.Type, in.Provider)
	if err == nil {
		if creds, credErr := s.credentials.Decrypt(ctx, in.CredentialsRef); credErr == nil {
			s.teardownWebhook(ctx, in, adapter, creds)
		}
	}

	s.mu.Lock()
	conn := s.connections[id]
	delete(s.connections, id)
	s.mu.Unlock()
	if conn != nil {
		if err := conn.Close(ctx); err != nil {
			s.logger.Warn("failed to close provider connection",
				zap.String("integration_id", id.String()),
				zap.Error(err),
			)
		}
	}
	s.limiter.Remove(id)

	in.Deactivate()
	if err := s.repo.Save(ctx, in); err != nil {
		return nil, err
	}

	s.logger.Info("integration deactivated", zap.String("integration_id", id.String()))
	return in, nil
}

// Connection returns the live session for an active integration
func (s *ConnectionService) Connection(id uuid.UUID) (integration.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conn, ok := s.connections[id]
	if !ok {
		return nil, integration.ErrIntegrationNotActive
	}
	return conn, nil
}

// CloseAll tears down every live session, used during shutdown
func (s *ConnectionService) CloseAll(ctx context.Context) {
	s.mu.Lock()
	conns := s.connections
	s.connections = make(map[uuid.UUID]integration.Connection)
	s.mu.Unlock()

	for id, conn := range conns {
		if err := conn.Close(ctx); err != nil {
			s.logger.Warn("failed to close provider connection",
				zap.String("integration_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

func (s *ConnectionService) callbackURL(in *integration.Integration) string {
	if in.WebhookConfig.CallbackURL != "" {
		return in.WebhookConfig.CallbackURL
	}
	return fmt.Sprintf("%s/webhooks/%s", s.callbackBaseURL, in.ID)
}

// recordActivationFailure notes a failure after a successful probe: the
// earlier steps were rolled back, so the integration stays INACTIVE and only
// the health error list records the cause.
func (s *ConnectionService) recordActivationFailure(ctx context.Context, in *integration.Integration, cause error) {
	in.RecordHealthError(cause.Error())
	s.persistActivationFailure(ctx, in, cause)
}

func (s *ConnectionService) persistActivationFailure(ctx context.Context, in *integration.Integration, cause error) {
	if err := s.repo.Save(ctx, in); err != nil {
		s.logger.Warn("failed to persist activation failure",
			zap.String("integration_id", in.ID.String()),
			zap.Error(err),
		)
	}
	s.logger.Warn("integration activation failed",
		zap.String("integration_id", in.ID.String()),
		zap.Error(cause),
	)
}

// teardownWebhook removes a provider-side registration if one exists
func (s *ConnectionService) teardownWebhook(ctx context.Context, in *integration.Integration, adapter integration.ProviderAdapter, creds integration.Credentials) {
	reg, err := s.webhooks.FindByIntegration(ctx, in.ID)
	if err != nil {
		return
	}
	if err := adapter.UnregisterWebhook(ctx, creds, reg.RegistrationID); err != nil {
		s.logger.Warn("failed to unregister provider webhook",
			zap.String("integration_id", in.ID.String()),
			zap.Error(err),
		)
	}
	if err := s.webhooks.DeleteByIntegration(ctx, in.ID); err != nil {
		s.logger.Warn("failed to delete webhook registration",
			zap.String("integration_id", in.ID.String()),
			zap.Error(err),
		)
	}
}
