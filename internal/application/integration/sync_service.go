package integration

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// ConnectionSource resolves the live provider session for an active
// integration
type ConnectionSource interface {
	Connection(id uuid.UUID) (integration.Connection, error)
}

// SyncInput selects what one sync run covers. Zero values fall back to the
// integration's sync policy.
type SyncInput struct {
	Direction integration.Direction
	Entities  []string
}

// BatchSyncResult is the outcome of one integration inside a batch trigger
type BatchSyncResult struct {
	IntegrationID uuid.UUID
	Run           *integration.SyncRun
	Err           error
}

// SyncServiceConfig tunes the sync engine
type SyncServiceConfig struct {
	// DefaultBatchSize applies when the sync policy does not set one
	DefaultBatchSize int
	// BatchTimeout bounds each individual provider call
	BatchTimeout time.Duration
	// MaxConcurrentBatch bounds the worker pool for batch triggers
	MaxConcurrentBatch int
}

// DefaultSyncServiceConfig returns sensible engine defaults
func DefaultSyncServiceConfig() SyncServiceConfig {
	return SyncServiceConfig{
		DefaultBatchSize:   100,
		BatchTimeout:       30 * time.Second,
		MaxConcurrentBatch: 4,
	}
}

// syncState tracks the per-integration exclusive run slot. At most one run
// executes at a time: direct calls queue on the slot and run serially, while
// scheduler triggers coalesce into a single pending resync.
type syncState struct {
	slot    chan struct{} // capacity 1; holding the token means a run is executing
	running bool
	pending bool
	cancel  context.CancelFunc
}

// SyncService executes synchronization runs. It acquires rate-limit permits
// before any work, pages records both ways through the per-integration
// connection, resolves conflicts per policy, and appends every completed run
// to the immutable ledger.
type SyncService struct {
	repo        integration.IntegrationRepository
	runs        integration.SyncRunRepository
	conflicts   integration.ManualConflictRepository
	records     integration.RecordStore
	providers   integration.ProviderRegistry
	connections ConnectionSource
	limiter     RateLimiter
	config      SyncServiceConfig
	logger      *zap.Logger

	mu     sync.Mutex
	states map[uuid.UUID]*syncState
}

// NewSyncService creates a new SyncService
func NewSyncService(
	repo integration.IntegrationRepository,
	runs integration.SyncRunRepository,
	conflicts integration.ManualConflictRepository,
	records integration.RecordStore,
	providers integration.ProviderRegistry,
	connections ConnectionSource,
	limiter RateLimiter,
	config SyncServiceConfig,
	logger *zap.Logger,
) *SyncService {
	if config.DefaultBatchSize <= 0 {
		config.DefaultBatchSize = DefaultSyncServiceConfig().DefaultBatchSize
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = DefaultSyncServiceConfig().BatchTimeout
	}
	if config.MaxConcurrentBatch <= 0 {
		config.MaxConcurrentBatch = DefaultSyncServiceConfig().MaxConcurrentBatch
	}
	return &SyncService{
		repo:        repo,
		runs:        runs,
		conflicts:   conflicts,
		records:     records,
		providers:   providers,
		connections: connections,
		limiter:     limiter,
		config:      config,
		logger:      logger,
		states:      make(map[uuid.UUID]*syncState),
	}
}

var _ SyncCanceler = (*SyncService)(nil)

// ---------------------------------------------------------------------------
// Run Coordination
// ---------------------------------------------------------------------------

// RunSync executes one synchronization run and returns its ledger entry.
// Concurrent calls for the same integration serialize on the run slot, so
// every caller gets its own completed run and the ledger windows never
// overlap; runs for different integrations proceed in parallel. Waiting ends
// early when the caller's context expires.
func (s *SyncService) RunSync(ctx context.Context, id uuid.UUID, input SyncInput) (*integration.SyncRun, error) {
	if err := s.acquire(ctx, id); err != nil {
		return nil, err
	}
	run, err := s.execute(ctx, id, input)
	s.finish(id)
	return run, err
}

// TriggerSync implements the scheduler trigger. When a run is already in
// flight the trigger coalesces into at most one pending resync instead of
// queueing.
func (s *SyncService) TriggerSync(ctx context.Context, id uuid.UUID) error {
	_, _, err := s.TrySync(ctx, id, SyncInput{})
	return err
}

// TrySync runs a sync unless one is already in flight, in which case it
// coalesces into a pending resync and reports started=false with no error.
func (s *SyncService) TrySync(ctx context.Context, id uuid.UUID, input SyncInput) (run *integration.SyncRun, started bool, err error) {
	if !s.tryAcquire(id) {
		s.markPending(id)
		return nil, false, nil
	}
	run, err = s.execute(ctx, id, input)
	s.finish(id)
	return run, true, err
}

// Cancel requests cooperative cancellation of the in-flight run. The run
// stops at the next batch boundary and its partial counts are still
// recorded. Returns false when nothing is running.
func (s *SyncService) Cancel(id uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok || !state.running {
		return false
	}
	state.pending = false
	if state.cancel != nil {
		state.cancel()
	}
	return true
}

// RunBatch triggers runs for several integrations through a bounded worker
// pool. Each result carries either the completed run or the error that
// prevented it.
func (s *SyncService) RunBatch(ctx context.Context, ids []uuid.UUID, input SyncInput) []BatchSyncResult {
	results := make([]BatchSyncResult, len(ids))
	sem := make(chan struct{}, s.config.MaxConcurrentBatch)
	var wg sync.WaitGroup

	for i, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			defer func() { <-sem }()
			run, err := s.RunSync(ctx, id, input)
			results[i] = BatchSyncResult{IntegrationID: id, Run: run, Err: err}
		}(i, id)
	}
	wg.Wait()
	return results
}

func (s *SyncService) state(id uuid.UUID) *syncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.states[id]
	if !ok {
		state = &syncState{slot: make(chan struct{}, 1)}
		s.states[id] = state
	}
	return state
}

// acquire blocks until the run slot is free or the context expires
func (s *SyncService) acquire(ctx context.Context, id uuid.UUID) error {
	state := s.state(id)
	select {
	case state.slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	state.running = true
	s.mu.Unlock()
	return nil
}

// tryAcquire takes the run slot only when it is immediately free
func (s *SyncService) tryAcquire(id uuid.UUID) bool {
	state := s.state(id)
	select {
	case state.slot <- struct{}{}:
	default:
		return false
	}
	s.mu.Lock()
	state.running = true
	s.mu.Unlock()
	return true
}

func (s *SyncService) markPending(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[id]; ok && state.running {
		state.pending = true
	}
}

// finish releases the run slot; a coalesced pending trigger starts one
// follow-up run in the background.
func (s *SyncService) finish(id uuid.UUID) {
	s.mu.Lock()
	state := s.states[id]
	state.running = false
	state.cancel = nil
	resync := state.pending
	state.pending = false
	s.mu.Unlock()
	<-state.slot

	if resync {
		go func() {
			if err := s.TriggerSync(context.Background(), id); err != nil {
				s.logger.Warn("coalesced resync failed",
					zap.String("integration_id", id.String()),
					zap.Error(err),
				)
			}
		}()
	}
}

func (s *SyncService) setCancel(id uuid.UUID, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state, ok := s.states[id]; ok {
		state.cancel = cancel
	}
}

// ---------------------------------------------------------------------------
// Run Execution
// ---------------------------------------------------------------------------

// execute performs one run under an already-acquired run slot.
//
// Permits for every direction component are acquired before any provider
// work; a denied permit aborts the attempt entirely, with no ledger entry
// and no stats change. Once work starts, individual batch failures only
// increment the run's error counts.
func (s *SyncService) execute(ctx context.Context, id uuid.UUID, input SyncInput) (*integration.SyncRun, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !in.IsActive() {
		return nil, integration.ErrIntegrationNotActive
	}

	direction, err := in.ResolveDirection(input.Direction)
	if err != nil {
		return nil, err
	}
	components := direction.Components()

	for range components {
		if !s.limiter.TryAcquire(id) {
			s.logger.Warn("sync aborted by rate limit",
				zap.String("integration_id", id.String()),
				zap.String("direction", string(direction)),
			)
			return nil, integration.ErrRateLimitExceeded
		}
	}

	conn, err := s.connections.Connection(id)
	if err != nil {
		return nil, err
	}

	entities, err := s.resolveEntities(in, input.Entities)
	if err != nil {
		return nil, err
	}
	batchSize := in.SyncPolicy.BatchSize
	if batchSize <= 0 {
		batchSize = s.config.DefaultBatchSize
	}

	lastSync := time.Time{}
	if prev, err := s.runs.LastSuccessful(ctx, id); err == nil && prev != nil {
		lastSync = prev.CompletedAt
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.setCancel(id, cancel)

	startedAt := time.Now()
	tally := &runTally{}

	for _, component := range components {
		for _, entity := range entities {
			if runCtx.Err() != nil {
				break
			}
			switch component {
			case integration.DirectionInbound:
				s.pullEntity(ctx, runCtx, conn, in, entity, batchSize, lastSync, tally)
			case integration.DirectionOutbound:
				s.pushEntity(ctx, runCtx, conn, in, entity, batchSize, tally)
			}
		}
	}
	cancelled := runCtx.Err() != nil

	completedAt := time.Now()
	status := integration.RunStatusSuccess
	if cancelled || tally.inbound.Errors > 0 || tally.outbound.Errors > 0 {
		status = integration.RunStatusFailed
	}
	run := &integration.SyncRun{
		SyncID:        uuid.New(),
		IntegrationID: id,
		Direction:     direction,
		Entities:      entities,
		Status:        status,
		Inbound:       tally.inbound,
		Outbound:      tally.outbound,
		Conflicts:     tally.conflicts,
		Duplicates:    tally.duplicates,
		DurationMs:    completedAt.Sub(startedAt).Milliseconds(),
		StartedAt:     startedAt,
		CompletedAt:   completedAt,
	}

	// Ledger and stats writes must survive caller cancellation: an expired
	// or cancelled context stops provider work, but the partial run is still
	// recorded with whatever it completed.
	persistCtx := context.WithoutCancel(ctx)
	if err := s.runs.Append(persistCtx, run); err != nil {
		return nil, err
	}
	if flipped := in.RecordRun(run); flipped {
		s.logger.Error("integration moved to ERROR after repeated failures",
			zap.String("integration_id", id.String()),
			zap.Int("consecutive_failures", in.SyncStats.ConsecutiveFailures),
		)
	}
	if err := s.repo.Save(persistCtx, in); err != nil {
		return nil, err
	}

	s.logger.Info("sync run completed",
		zap.String("integration_id", id.String()),
		zap.String("sync_id", run.SyncID.String()),
		zap.String("direction", string(direction)),
		zap.String("status", string(run.Status)),
		zap.Int("processed", run.TotalProcessed()),
		zap.Int("errors", run.TotalErrors()),
		zap.Int("conflicts", run.Conflicts),
		zap.Int64("duration_ms", run.DurationMs),
		zap.Bool("cancelled", cancelled),
	)

	if cancelled {
		return run, integration.ErrSyncCancelled
	}
	return run, nil
}

// runTally accumulates outcome counts while a run executes
type runTally struct {
	inbound    integration.DirectionCounts
	outbound   integration.DirectionCounts
	conflicts  int
	duplicates int
}

func (s *SyncService) resolveEntities(in *integration.Integration, requested []string) ([]string, error) {
	if len(requested) > 0 {
		return requested, nil
	}
	if len(in.SyncPolicy.Entities) > 0 {
		return in.SyncPolicy.Entities, nil
	}
	adapter, err := s.providers.Get(in.Type, in.Provider)
	if err != nil {
		return nil, err
	}
	return adapter.EntityTypes(), nil
}

// pullEntity pages one entity type inbound: fetch, map, detect conflicts
// against the local copy, upsert winners into the record store.
func (s *SyncService) pullEntity(
	ctx, runCtx context.Context,
	conn integration.Connection,
	in *integration.Integration,
	entity string,
	batchSize int,
	lastSync time.Time,
	tally *runTally,
) {
	cursor := ""
	for batchNum := 0; ; batchNum++ {
		if runCtx.Err() != nil {
			return
		}
		batchCtx, cancel := context.WithTimeout(runCtx, s.config.BatchTimeout)
		batch, err := conn.FetchBatch(batchCtx, entity, cursor, batchSize)
		cancel()
		if err != nil {
			tally.inbound.Errors++
			s.logger.Warn("inbound batch failed",
				zap.String("integration_id", in.ID.String()),
				zap.String("entity_type", entity),
				zap.Int("batch", batchNum),
				zap.Error(err),
			)
			return
		}

		for _, rec := range batch.Records {
			tally.inbound.Processed++
			mapped, err := in.DataMapping.Apply(rec, integration.DirectionInbound)
			if err != nil {
				tally.inbound.Errors++
				continue
			}
			key := mapped.Key()
			if key == "" {
				key = rec.Key()
			}
			if key == "" {
				tally.inbound.Errors++
				continue
			}

			local, err := s.records.Find(ctx, in.ID, entity, key)
			if err != nil {
				tally.inbound.Errors++
				continue
			}
			if local != nil && integration.InConflict(local.Payload, mapped, lastSync) {
				tally.conflicts++
				winner, outcome := integration.ResolveConflict(
					in.SyncPolicy.ConflictStrategy, integration.DirectionInbound, local.Payload, mapped,
				)
				switch outcome {
				case integration.OutcomeDeferred:
					conflict := integration.NewManualConflict(in.ID, entity, local.Payload, mapped)
					if err := s.conflicts.Save(ctx, conflict); err != nil {
						tally.inbound.Errors++
					}
					continue
				case integration.OutcomeAppliedLocal:
					continue
				default:
					mapped = winner
				}
			}

			created, err := s.records.Save(ctx, in.ID, entity, mapped)
			switch {
			case err != nil:
				tally.inbound.Errors++
			case created:
				tally.inbound.Created++
			default:
				tally.inbound.Updated++
			}
		}

		cursor = batch.NextCursor
		if !batch.HasMore {
			return
		}
	}
}

// pushEntity pages one entity type outbound: read local batches, map, push,
// fold the provider's per-batch result into the tally.
func (s *SyncService) pushEntity(
	ctx, runCtx context.Context,
	conn integration.Connection,
	in *integration.Integration,
	entity string,
	batchSize int,
	tally *runTally,
) {
	offset := 0
	for batchNum := 0; ; batchNum++ {
		if runCtx.Err() != nil {
			return
		}
		recs, hasMore, err := s.records.ListBatch(ctx, in.ID, entity, offset, batchSize)
		if err != nil {
			tally.outbound.Errors++
			return
		}
		if len(recs) == 0 {
			return
		}
		offset += len(recs)

		payloads := make([]integration.Record, 0, len(recs))
		for _, rec := range recs {
			mapped, err := in.DataMapping.Apply(rec, integration.DirectionOutbound)
			if err != nil {
				tally.outbound.Processed++
				tally.outbound.Errors++
				continue
			}
			payloads = append(payloads, mapped)
		}
		if len(payloads) > 0 {
			batchCtx, cancel := context.WithTimeout(runCtx, s.config.BatchTimeout)
			result, err := conn.PushBatch(batchCtx, entity, payloads)
			cancel()
			if err != nil {
				tally.outbound.Processed += len(payloads)
				tally.outbound.Errors++
				s.logger.Warn("outbound batch failed",
					zap.String("integration_id", in.ID.String()),
					zap.String("entity_type", entity),
					zap.Int("batch", batchNum),
					zap.Error(err),
				)
			} else {
				tally.outbound.Processed += len(payloads)
				tally.outbound.Created += result.Created
				tally.outbound.Updated += result.Updated
				tally.duplicates += result.Duplicates
				tally.outbound.Errors += len(result.Failures)
			}
		}

		if !hasMore {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Conflict Resolution
// ---------------------------------------------------------------------------

// ResolveConflict settles one queued manual conflict. Applying the local
// side pushes it to the provider; applying the remote side writes it to the
// local record store.
func (s *SyncService) ResolveConflict(ctx context.Context, conflictID uuid.UUID, resolution string) (*integration.ManualConflict, error) {
	conflict, err := s.conflicts.FindByID(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	winner, err := conflict.Resolve(resolution)
	if err != nil {
		return nil, err
	}

	switch resolution {
	case integration.ResolutionApplyLocal:
		conn, err := s.connections.Connection(conflict.IntegrationID)
		if err != nil {
			return nil, err
		}
		in, err := s.repo.FindByID(ctx, conflict.IntegrationID)
		if err != nil {
			return nil, err
		}
		payload, err := in.DataMapping.Apply(winner, integration.DirectionOutbound)
		if err != nil {
			return nil, err
		}
		if _, err := conn.PushBatch(ctx, conflict.EntityType, []integration.Record{payload}); err != nil {
			return nil, err
		}
	case integration.ResolutionApplyRemote:
		if _, err := s.records.Save(ctx, conflict.IntegrationID, conflict.EntityType, winner); err != nil {
			return nil, err
		}
	}

	if err := s.conflicts.Save(ctx, conflict); err != nil {
		return nil, err
	}
	s.logger.Info("manual conflict resolved",
		zap.String("conflict_id", conflict.ID.String()),
		zap.String("integration_id", conflict.IntegrationID.String()),
		zap.String("resolution", resolution),
	)
	return conflict, nil
}

// OpenConflicts lists the unresolved conflicts queued for an integration
func (s *SyncService) OpenConflicts(ctx context.Context, integrationID uuid.UUID) ([]integration.ManualConflict, error) {
	return s.conflicts.FindOpenByIntegration(ctx, integrationID)
}

// Runs returns ledger entries for an integration, newest first
func (s *SyncService) Runs(ctx context.Context, integrationID uuid.UUID, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	return s.runs.FindByIntegration(ctx, integrationID, filter)
}
