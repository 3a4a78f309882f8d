package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synchub/backend/internal/domain/integration"
)

func newTestRun(integrationID uuid.UUID, status integration.RunStatus, completedAt time.Time) *integration.SyncRun {
	return &integration.SyncRun{
		SyncID:        uuid.New(),
		IntegrationID: integrationID,
		Direction:     integration.DirectionBidirectional,
		Entities:      []string{"contacts"},
		Status:        status,
		Inbound:       integration.DirectionCounts{Processed: 10, Created: 4, Updated: 6},
		Outbound:      integration.DirectionCounts{Processed: 5, Created: 2, Updated: 3},
		Conflicts:     1,
		Duplicates:    2,
		DurationMs:    1500,
		StartedAt:     completedAt.Add(-2 * time.Second),
		CompletedAt:   completedAt,
	}
}

func TestGormSyncRunRepository_AppendAndFind(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRunRepository(db)
	ctx := context.Background()

	integrationID := uuid.New()
	now := time.Now()

	oldRun := newTestRun(integrationID, integration.RunStatusFailed, now.Add(-2*time.Hour))
	newRun := newTestRun(integrationID, integration.RunStatusSuccess, now.Add(-10*time.Minute))
	require.NoError(t, repo.Append(ctx, oldRun))
	require.NoError(t, repo.Append(ctx, newRun))

	otherRun := newTestRun(uuid.New(), integration.RunStatusSuccess, now)
	require.NoError(t, repo.Append(ctx, otherRun))

	t.Run("returns runs newest first", func(t *testing.T) {
		runs, err := repo.FindByIntegration(ctx, integrationID, integration.SyncRunFilter{})
		require.NoError(t, err)
		require.Len(t, runs, 2)
		assert.Equal(t, newRun.SyncID, runs[0].SyncID)
		assert.Equal(t, oldRun.SyncID, runs[1].SyncID)
	})

	t.Run("round-trips direction counts and entities", func(t *testing.T) {
		runs, err := repo.FindByIntegration(ctx, integrationID, integration.SyncRunFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, 10, runs[0].Inbound.Processed)
		assert.Equal(t, 4, runs[0].Inbound.Created)
		assert.Equal(t, 5, runs[0].Outbound.Processed)
		assert.Equal(t, []string{"contacts"}, runs[0].Entities)
		assert.Equal(t, 1, runs[0].Conflicts)
		assert.Equal(t, 2, runs[0].Duplicates)
	})

	t.Run("filters by status", func(t *testing.T) {
		failed := integration.RunStatusFailed
		runs, err := repo.FindByIntegration(ctx, integrationID, integration.SyncRunFilter{Status: &failed})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, oldRun.SyncID, runs[0].SyncID)
	})

	t.Run("filters by completion window", func(t *testing.T) {
		from := now.Add(-time.Hour)
		runs, err := repo.FindByIntegration(ctx, integrationID, integration.SyncRunFilter{From: &from})
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, newRun.SyncID, runs[0].SyncID)
	})

	t.Run("counts with filter", func(t *testing.T) {
		count, err := repo.CountByIntegration(ctx, integrationID, integration.SyncRunFilter{})
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)

		success := integration.RunStatusSuccess
		count, err = repo.CountByIntegration(ctx, integrationID, integration.SyncRunFilter{Status: &success})
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestGormSyncRunRepository_LastSuccessful(t *testing.T) {
	db := setupSyncTestDB(t)
	repo := NewGormSyncRunRepository(db)
	ctx := context.Background()

	integrationID := uuid.New()
	now := time.Now()

	t.Run("returns nil when ledger is empty", func(t *testing.T) {
		run, err := repo.LastSuccessful(ctx, integrationID)
		require.NoError(t, err)
		assert.Nil(t, run)
	})

	t.Run("skips failed runs", func(t *testing.T) {
		older := newTestRun(integrationID, integration.RunStatusSuccess, now.Add(-time.Hour))
		failed := newTestRun(integrationID, integration.RunStatusFailed, now)
		require.NoError(t, repo.Append(ctx, older))
		require.NoError(t, repo.Append(ctx, failed))

		run, err := repo.LastSuccessful(ctx, integrationID)
		require.NoError(t, err)
		require.NotNil(t, run)
		assert.Equal(t, older.SyncID, run.SyncID)
	})
}
