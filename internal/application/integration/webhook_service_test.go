package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

type webhookFixture struct {
	syncFixture
	webhooks    *memWebhookRepo
	idempotency *memIdempotencyStore
	service     *WebhookService
}

func newWebhookFixture(adapter *fakeAdapter) *webhookFixture {
	sf := newSyncFixture(adapter)
	f := &webhookFixture{
		syncFixture: *sf,
		webhooks:    newMemWebhookRepo(),
		idempotency: newMemIdempotencyStore(),
	}
	f.service = NewWebhookService(
		f.repo, f.webhooks, f.registry, f.idempotency, sf.service,
		time.Hour, zap.NewNop(),
	)
	return f
}

func (f *webhookFixture) seed(ctx context.Context, adapter *fakeAdapter) *integration.Integration {
	in := activeIntegration(f.repo, integration.TypeSales, "hubspot")
	in.WebhookConfig = integration.WebhookConfig{Enabled: true, Events: []string{"contact.updated"}}
	if err := f.repo.Save(ctx, in); err != nil {
		panic(err)
	}
	reg := integration.NewWebhookRegistration(in.ID, "https://hooks.example.com", "hook-secret", in.WebhookConfig.Events, "reg-1")
	if err := f.webhooks.Save(ctx, reg); err != nil {
		panic(err)
	}
	f.conns.set(in.ID, adapter.conn)
	return in
}

func TestWebhookService_Handle(t *testing.T) {
	ctx := context.Background()
	payload := []byte(`{"event_id":"evt-1","event_type":"contact.updated"}`)

	t.Run("verified event triggers an inbound sync", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		fetched := make([]string, 0, 1)
		adapter.conn.fetchFn = func(entityType, cursor string, size int) (*integration.Batch, error) {
			fetched = append(fetched, entityType)
			return &integration.Batch{Records: []integration.Record{{"id": "r1"}}}, nil
		}
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)

		result, err := f.service.Handle(ctx, in.ID, payload, map[string]string{"X-Webhook-Signature": "sig"})
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.True(t, result.TriggeredSync)
		assert.False(t, result.Duplicate)
		assert.Equal(t, []string{"contacts"}, fetched, "sync must be scoped to affected entity types")
		assert.Len(t, f.runs.all(), 1)
	})

	t.Run("tampered signature is rejected before parsing", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		adapter.verifyErr = integration.ErrInvalidSignature
		parsed := false
		adapter.parseFn = func(payload []byte) (*integration.WebhookEvent, error) {
			parsed = true
			return nil, nil
		}
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)

		_, err := f.service.Handle(ctx, in.ID, payload, nil)
		assert.ErrorIs(t, err, integration.ErrInvalidSignature)
		assert.False(t, parsed)
		assert.Empty(t, f.runs.all())
	})

	t.Run("replayed event is acknowledged without side effects", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		adapter.conn.fetchFn = func(entityType, cursor string, size int) (*integration.Batch, error) {
			return &integration.Batch{}, nil
		}
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)

		first, err := f.service.Handle(ctx, in.ID, payload, nil)
		require.NoError(t, err)
		require.True(t, first.TriggeredSync)

		second, err := f.service.Handle(ctx, in.ID, payload, nil)
		require.NoError(t, err)
		assert.True(t, second.Accepted)
		assert.True(t, second.Duplicate)
		assert.False(t, second.TriggeredSync)
		assert.Len(t, f.runs.all(), 1, "replay must not trigger a second sync")
	})

	t.Run("non-change events do not trigger a sync", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		adapter.parseFn = func(payload []byte) (*integration.WebhookEvent, error) {
			return &integration.WebhookEvent{
				EventID:      "evt-ping",
				EventType:    "ping",
				RemoteChange: false,
			}, nil
		}
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)

		result, err := f.service.Handle(ctx, in.ID, payload, nil)
		require.NoError(t, err)
		assert.True(t, result.Accepted)
		assert.False(t, result.TriggeredSync)
		assert.Empty(t, f.runs.all())
	})

	t.Run("webhooks disabled", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)
		in.WebhookConfig.Enabled = false
		require.NoError(t, f.repo.Save(ctx, in))

		_, err := f.service.Handle(ctx, in.ID, payload, nil)
		assert.ErrorIs(t, err, integration.ErrWebhookDisabled)
	})

	t.Run("inactive integration", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		f := newWebhookFixture(adapter)
		in := f.seed(ctx, adapter)
		in.Deactivate()
		require.NoError(t, f.repo.Save(ctx, in))

		_, err := f.service.Handle(ctx, in.ID, payload, nil)
		assert.ErrorIs(t, err, integration.ErrIntegrationNotActive)
	})

	t.Run("same event id on another integration still processes", func(t *testing.T) {
		adapter := newFakeAdapter(integration.TypeSales, "hubspot")
		adapter.conn.fetchFn = func(entityType, cursor string, size int) (*integration.Batch, error) {
			return &integration.Batch{}, nil
		}
		f := newWebhookFixture(adapter)
		first := f.seed(ctx, adapter)
		second := f.seed(ctx, adapter)

		r1, err := f.service.Handle(ctx, first.ID, payload, nil)
		require.NoError(t, err)
		r2, err := f.service.Handle(ctx, second.ID, payload, nil)
		require.NoError(t, err)
		assert.False(t, r1.Duplicate)
		assert.False(t, r2.Duplicate)
	})
}
