package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// SyncTrigger starts a sync for one integration. Implementations must be
// safe to call for an integration that is already syncing.
type SyncTrigger interface {
	TriggerSync(ctx context.Context, integrationID uuid.UUID) error
}

// SyncSchedulerConfig holds configuration for the periodic sync scheduler
type SyncSchedulerConfig struct {
	// Enabled indicates if the scheduler is running
	Enabled bool
	// PollInterval is how often due integrations are looked up
	PollInterval time.Duration
	// TriggerTimeout bounds the due-integration lookup. Runs themselves
	// carry no scheduler deadline; they stop via per-batch timeouts and
	// cooperative cancellation.
	TriggerTimeout time.Duration
}

// DefaultSyncSchedulerConfig returns default scheduler configuration
func DefaultSyncSchedulerConfig() SyncSchedulerConfig {
	return SyncSchedulerConfig{
		Enabled:        true,
		PollInterval:   30 * time.Second,
		TriggerTimeout: 10 * time.Second,
	}
}

// SyncScheduler periodically finds integrations whose sync frequency has
// elapsed and hands them to the sync engine. Overlap control lives in the
// engine; the scheduler only fires triggers.
type SyncScheduler struct {
	config  SyncSchedulerConfig
	repo    integration.IntegrationRepository
	trigger SyncTrigger
	logger  *zap.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewSyncScheduler creates a new sync scheduler
func NewSyncScheduler(config SyncSchedulerConfig, repo integration.IntegrationRepository, trigger SyncTrigger, logger *zap.Logger) *SyncScheduler {
	return &SyncScheduler{
		config:  config,
		repo:    repo,
		trigger: trigger,
		logger:  logger,
	}
}

// Start launches the polling loop. Calling Start on a running scheduler is
// a no-op.
func (s *SyncScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || !s.config.Enabled {
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(runCtx)
	s.logger.Info("sync scheduler started",
		zap.Duration("poll_interval", s.config.PollInterval),
	)
}

// Stop halts the polling loop and waits for it to exit
func (s *SyncScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.wg.Wait()
	s.logger.Info("sync scheduler stopped")
}

func (s *SyncScheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

// runDue triggers a sync for every integration whose frequency has elapsed.
// Each trigger runs in its own goroutine so one slow integration never
// delays the others or the next poll; the timeout bounds only the lookup.
func (s *SyncScheduler) runDue(ctx context.Context) {
	queryCtx, cancel := context.WithTimeout(ctx, s.config.TriggerTimeout)
	due, err := s.repo.FindDueForSync(queryCtx, time.Now())
	cancel()
	if err != nil {
		s.logger.Error("failed to query due integrations", zap.Error(err))
		return
	}

	for _, in := range due {
		in := in
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.trigger.TriggerSync(ctx, in.ID); err != nil {
				s.logger.Warn("scheduled sync trigger failed",
					zap.String("integration_id", in.ID.String()),
					zap.String("integration_name", in.Name),
					zap.Error(err),
				)
				return
			}
			s.logger.Debug("scheduled sync triggered",
				zap.String("integration_id", in.ID.String()),
			)
		}()
	}
}
