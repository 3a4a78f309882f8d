package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

func newRegistryService() (*RegistryService, *memIntegrationRepo, *memCredentialStore) {
	repo := newMemIntegrationRepo()
	creds := newMemCredentialStore()
	registry := newFakeRegistry(newFakeAdapter(integration.TypeSales, "hubspot"))
	return NewRegistryService(repo, creds, registry, zap.NewNop()), repo, creds
}

func validCreateInput() CreateIntegrationInput {
	return CreateIntegrationInput{
		Name:        "CRM Sync",
		Type:        integration.TypeSales,
		Provider:    "hubspot",
		Credentials: integration.Credentials{"api_key": "secret"},
		SyncPolicy: integration.SyncPolicy{
			Enabled:          true,
			Frequency:        time.Hour,
			Direction:        integration.DirectionBidirectional,
			ConflictStrategy: integration.StrategyLatestWins,
		},
		RateLimits: integration.RateLimits{PerMinute: 60, PerHour: 1000},
	}
}

func TestRegistryService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("registers inactive with encrypted credentials", func(t *testing.T) {
		svc, repo, creds := newRegistryService()

		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)
		assert.Equal(t, integration.StatusInactive, in.Status)
		assert.NotEqual(t, uuid.Nil, in.CredentialsRef)
		assert.True(t, creds.has(in.CredentialsRef))

		stored, err := repo.FindByID(ctx, in.ID)
		require.NoError(t, err)
		assert.Equal(t, "CRM Sync", stored.Name)
	})

	t.Run("rejects provider without an adapter", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		input := validCreateInput()
		input.Provider = "salesforce"

		_, err := svc.Create(ctx, input)
		assert.ErrorIs(t, err, integration.ErrUnsupportedIntegration)
	})

	t.Run("rejects empty name", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		input := validCreateInput()
		input.Name = ""

		_, err := svc.Create(ctx, input)
		assert.ErrorIs(t, err, integration.ErrIntegrationNameEmpty)
	})

	t.Run("rejects non-positive rate limits", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		input := validCreateInput()
		input.RateLimits = integration.RateLimits{PerMinute: 0, PerHour: 1000}

		_, err := svc.Create(ctx, input)
		assert.ErrorIs(t, err, integration.ErrInvalidRateLimits)
	})

	t.Run("cleans up ciphertext when save fails", func(t *testing.T) {
		svc, repo, creds := newRegistryService()
		repo.saveErr = assert.AnError

		_, err := svc.Create(ctx, validCreateInput())
		require.Error(t, err)
		assert.Empty(t, creds.items)
	})
}

func TestRegistryService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("patches only provided fields", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		name := "Renamed"
		updated, err := svc.Update(ctx, in.ID, UpdateIntegrationInput{Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", updated.Name)
		assert.Equal(t, in.RateLimits, updated.RateLimits)
	})

	t.Run("rotating credentials replaces the stored ciphertext", func(t *testing.T) {
		svc, _, creds := newRegistryService()
		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)
		oldRef := in.CredentialsRef

		updated, err := svc.Update(ctx, in.ID, UpdateIntegrationInput{
			Credentials: integration.Credentials{"api_key": "rotated"},
		})
		require.NoError(t, err)
		assert.NotEqual(t, oldRef, updated.CredentialsRef)
		assert.False(t, creds.has(oldRef))

		plaintext, err := creds.Decrypt(ctx, updated.CredentialsRef)
		require.NoError(t, err)
		assert.Equal(t, "rotated", plaintext["api_key"])
	})

	t.Run("invalid patch is rejected", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		bad := integration.RateLimits{PerMinute: -1, PerHour: -1}
		_, err = svc.Update(ctx, in.ID, UpdateIntegrationInput{RateLimits: &bad})
		assert.ErrorIs(t, err, integration.ErrInvalidRateLimits)
	})

	t.Run("unknown integration", func(t *testing.T) {
		svc, _, _ := newRegistryService()
		_, err := svc.Update(ctx, uuid.New(), UpdateIntegrationInput{})
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
	})
}

func TestRegistryService_Deregister(t *testing.T) {
	ctx := context.Background()

	t.Run("removes record and ciphertext", func(t *testing.T) {
		svc, repo, creds := newRegistryService()
		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)

		require.NoError(t, svc.Deregister(ctx, in.ID))
		_, err = repo.FindByID(ctx, in.ID)
		assert.ErrorIs(t, err, integration.ErrIntegrationNotFound)
		assert.False(t, creds.has(in.CredentialsRef))
	})

	t.Run("active integrations must deactivate first", func(t *testing.T) {
		svc, repo, _ := newRegistryService()
		in, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)
		require.NoError(t, in.Activate())
		require.NoError(t, repo.Save(ctx, in))

		err = svc.Deregister(ctx, in.ID)
		assert.ErrorIs(t, err, integration.ErrIntegrationActive)
	})
}

func TestRegistryService_List(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := newRegistryService()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, validCreateInput())
		require.NoError(t, err)
	}
	activeIntegration(repo, integration.TypeSales, "hubspot")

	status := integration.StatusActive
	items, total, err := svc.List(ctx, integration.IntegrationFilter{Status: &status})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, items, 1)
}
