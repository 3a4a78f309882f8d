package integration

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Conflict Detection & Resolution
// ---------------------------------------------------------------------------

// ConflictOutcome describes how a detected conflict was settled
type ConflictOutcome string

const (
	// OutcomeAppliedLocal kept the local record
	OutcomeAppliedLocal ConflictOutcome = "APPLIED_LOCAL"
	// OutcomeAppliedRemote kept the remote record
	OutcomeAppliedRemote ConflictOutcome = "APPLIED_REMOTE"
	// OutcomeDeferred queued the pair for manual resolution
	OutcomeDeferred ConflictOutcome = "DEFERRED"
)

// InConflict reports whether the same logical record diverged on both sides
// since the last successful sync. Records without usable modification
// timestamps are never considered conflicting.
func InConflict(local, remote Record, lastSync time.Time) bool {
	lm, rm := local.ModifiedAt(), remote.ModifiedAt()
	if lm.IsZero() || rm.IsZero() {
		return false
	}
	return lm.After(lastSync) && rm.After(lastSync)
}

// ResolveConflict applies the configured strategy to a conflicting pair.
// Source and target are relative to the sync direction: inbound flows
// remote to local, outbound flows local to remote. Resolution is
// deterministic: ties under LATEST_WINS keep the local record.
func ResolveConflict(strategy ConflictStrategy, direction Direction, local, remote Record) (Record, ConflictOutcome) {
	switch strategy {
	case StrategyLatestWins:
		if remote.ModifiedAt().After(local.ModifiedAt()) {
			return remote, OutcomeAppliedRemote
		}
		return local, OutcomeAppliedLocal
	case StrategySourceWins:
		if direction == DirectionOutbound {
			return local, OutcomeAppliedLocal
		}
		return remote, OutcomeAppliedRemote
	case StrategyTargetWins:
		if direction == DirectionOutbound {
			return remote, OutcomeAppliedRemote
		}
		return local, OutcomeAppliedLocal
	case StrategyManual:
		return nil, OutcomeDeferred
	default:
		return local, OutcomeAppliedLocal
	}
}

// ---------------------------------------------------------------------------
// Manual Conflict Queue
// ---------------------------------------------------------------------------

// Resolution choices for deferred conflicts
const (
	ResolutionApplyLocal  = "APPLY_LOCAL"
	ResolutionApplyRemote = "APPLY_REMOTE"
)

// ManualConflict is one deferred conflict awaiting external resolution.
// Deferred records are counted in the owning run but never applied until
// resolved through the conflict queue.
type ManualConflict struct {
	shared.BaseEntity

	IntegrationID uuid.UUID
	EntityType    string
	RecordKey     string
	Local         Record
	Remote        Record
	DetectedAt    time.Time

	Resolved   bool
	Resolution string
	ResolvedAt *time.Time
}

// NewManualConflict queues a conflicting record pair
func NewManualConflict(integrationID uuid.UUID, entityType string, local, remote Record) *ManualConflict {
	return &ManualConflict{
		BaseEntity:    shared.NewBaseEntity(),
		IntegrationID: integrationID,
		EntityType:    entityType,
		RecordKey:     local.Key(),
		Local:         local,
		Remote:        remote,
		DetectedAt:    time.Now(),
	}
}

// Resolve settles the conflict with the chosen side
func (c *ManualConflict) Resolve(resolution string) (Record, error) {
	if c.Resolved {
		return nil, ErrConflictAlreadyResolved
	}
	var winner Record
	switch resolution {
	case ResolutionApplyLocal:
		winner = c.Local
	case ResolutionApplyRemote:
		winner = c.Remote
	default:
		return nil, ErrInvalidResolution
	}
	now := time.Now()
	c.Resolved = true
	c.Resolution = resolution
	c.ResolvedAt = &now
	c.UpdatedAt = now
	return winner, nil
}

// ManualConflictRepository persists the deferred-conflict queue
type ManualConflictRepository interface {
	Save(ctx context.Context, conflict *ManualConflict) error
	FindByID(ctx context.Context, id uuid.UUID) (*ManualConflict, error)
	FindOpenByIntegration(ctx context.Context, integrationID uuid.UUID) ([]ManualConflict, error)
	DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error
}
