package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// WebhookRegistration records a provider-side webhook endpoint. It exists
// only while the owning integration is active with webhooks enabled and is
// torn down on deactivation.
type WebhookRegistration struct {
	ID             uuid.UUID
	IntegrationID  uuid.UUID
	URL            string
	Secret         string
	Events         []string
	RegistrationID string
	CreatedAt      time.Time
}

// NewWebhookRegistration creates a registration record
func NewWebhookRegistration(integrationID uuid.UUID, url, secret string, events []string, registrationID string) *WebhookRegistration {
	return &WebhookRegistration{
		ID:             uuid.New(),
		IntegrationID:  integrationID,
		URL:            url,
		Secret:         secret,
		Events:         events,
		RegistrationID: registrationID,
		CreatedAt:      time.Now(),
	}
}

// WebhookRegistrationRepository persists webhook registrations
type WebhookRegistrationRepository interface {
	Save(ctx context.Context, reg *WebhookRegistration) error
	FindByIntegration(ctx context.Context, integrationID uuid.UUID) (*WebhookRegistration, error)
	DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error
}
