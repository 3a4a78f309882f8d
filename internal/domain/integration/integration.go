package integration

import (
	"time"

	"github.com/google/uuid"
	"github.com/synchub/backend/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Enumerations
// ---------------------------------------------------------------------------

// Type is the category of a third-party integration
type Type string

const (
	TypeEmail         Type = "EMAIL"
	TypeCalendar      Type = "CALENDAR"
	TypeSales         Type = "SALES"
	TypeMarketing     Type = "MARKETING"
	TypeSupport       Type = "SUPPORT"
	TypeAccounting    Type = "ACCOUNTING"
	TypeCommunication Type = "COMMUNICATION"
	TypeAnalytics     Type = "ANALYTICS"
)

// IsValid returns true if the type is one of the supported categories
func (t Type) IsValid() bool {
	switch t {
	case TypeEmail, TypeCalendar, TypeSales, TypeMarketing,
		TypeSupport, TypeAccounting, TypeCommunication, TypeAnalytics:
		return true
	default:
		return false
	}
}

// String returns the string representation of Type
func (t Type) String() string {
	return string(t)
}

// Direction is the direction of data synchronization
type Direction string

const (
	// DirectionInbound pulls remote data into the local system
	DirectionInbound Direction = "INBOUND"
	// DirectionOutbound pushes local data to the remote system
	DirectionOutbound Direction = "OUTBOUND"
	// DirectionBidirectional syncs both ways
	DirectionBidirectional Direction = "BIDIRECTIONAL"
)

// IsValid returns true if the direction is valid
func (d Direction) IsValid() bool {
	switch d {
	case DirectionInbound, DirectionOutbound, DirectionBidirectional:
		return true
	default:
		return false
	}
}

// Components expands the direction into its inbound/outbound parts
func (d Direction) Components() []Direction {
	if d == DirectionBidirectional {
		return []Direction{DirectionInbound, DirectionOutbound}
	}
	return []Direction{d}
}

// String returns the string representation of Direction
func (d Direction) String() string {
	return string(d)
}

// ConflictStrategy selects how divergent concurrent modifications are resolved
type ConflictStrategy string

const (
	// StrategyLatestWins picks the record with the more recent modification timestamp
	StrategyLatestWins ConflictStrategy = "LATEST_WINS"
	// StrategySourceWins always prefers the side data is flowing from
	StrategySourceWins ConflictStrategy = "SOURCE_WINS"
	// StrategyTargetWins always prefers the side data is flowing to
	StrategyTargetWins ConflictStrategy = "TARGET_WINS"
	// StrategyManual defers the record to the manual conflict queue
	StrategyManual ConflictStrategy = "MANUAL"
)

// IsValid returns true if the strategy is valid
func (s ConflictStrategy) IsValid() bool {
	switch s {
	case StrategyLatestWins, StrategySourceWins, StrategyTargetWins, StrategyManual:
		return true
	default:
		return false
	}
}

// Status is the lifecycle state of an integration
type Status string

const (
	StatusInactive Status = "INACTIVE"
	StatusActive   Status = "ACTIVE"
	StatusError    Status = "ERROR"
)

// IsValid returns true if the status is valid
func (s Status) IsValid() bool {
	switch s {
	case StatusInactive, StatusActive, StatusError:
		return true
	default:
		return false
	}
}

// HealthStatus is the derived health of an integration
type HealthStatus string

const (
	HealthUnknown   HealthStatus = "UNKNOWN"
	HealthHealthy   HealthStatus = "HEALTHY"
	HealthDegraded  HealthStatus = "DEGRADED"
	HealthUnhealthy HealthStatus = "UNHEALTHY"
)

// ---------------------------------------------------------------------------
// Value Objects
// ---------------------------------------------------------------------------

// SyncPolicy configures scheduled synchronization for an integration
type SyncPolicy struct {
	// Enabled controls whether the scheduler triggers syncs automatically
	Enabled bool
	// Frequency is the interval between scheduled syncs
	Frequency time.Duration
	// Direction is the default sync direction
	Direction Direction
	// ConflictStrategy resolves divergent concurrent modifications
	ConflictStrategy ConflictStrategy
	// BatchSize is the default number of records per provider call
	BatchSize int
	// Entities restricts scheduled syncs to these entity types (empty = all)
	Entities []string
}

// WebhookConfig configures inbound webhook delivery for an integration
type WebhookConfig struct {
	// Enabled controls whether a webhook endpoint is registered on activation
	Enabled bool
	// Events is the list of provider event types to subscribe to
	Events []string
	// CallbackURL is the base delivery URL; the integration ID is appended
	CallbackURL string
}

// RateLimits bounds outbound request volume toward the provider
type RateLimits struct {
	PerMinute int
	PerHour   int
}

// SyncStats accumulates outcomes across sync runs
type SyncStats struct {
	TotalRuns           int64
	SuccessfulRuns      int64
	FailedRuns          int64
	LastDurationMs      int64
	ConsecutiveFailures int
}

// HealthError is one entry of the bounded recent-error list
type HealthError struct {
	Message    string
	OccurredAt time.Time
}

// maxHealthErrors bounds the recent-error list on the aggregate
const maxHealthErrors = 10

// HealthState is the cached health of an integration
type HealthState struct {
	Status      HealthStatus
	LastCheckAt *time.Time
	Errors      []HealthError
}

// ---------------------------------------------------------------------------
// Supported Integrations
// ---------------------------------------------------------------------------

// supportedProviders is the table of (type, provider) pairs the engine accepts
var supportedProviders = map[Type][]string{
	TypeEmail:         {"gmail", "outlook", "mailgun"},
	TypeCalendar:      {"google-calendar", "outlook-calendar", "calendly"},
	TypeSales:         {"salesforce", "hubspot", "pipedrive"},
	TypeMarketing:     {"mailchimp", "marketo", "brevo"},
	TypeSupport:       {"zendesk", "freshdesk", "intercom"},
	TypeAccounting:    {"quickbooks", "xero", "freshbooks"},
	TypeCommunication: {"slack", "teams", "twilio"},
	TypeAnalytics:     {"mixpanel", "amplitude", "segment"},
}

// SupportedProviders returns the providers supported for a type
func SupportedProviders(t Type) []string {
	return supportedProviders[t]
}

// IsSupported returns true if the (type, provider) pair is in the supported table
func IsSupported(t Type, provider string) bool {
	for _, p := range supportedProviders[t] {
		if p == provider {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Integration Aggregate
// ---------------------------------------------------------------------------

// Integration is one configured third-party connection
type Integration struct {
	shared.BaseEntity

	Name     string
	Type     Type
	Provider string

	// CredentialsRef points at the encrypted credentials in the credential
	// store; the aggregate never carries plaintext secrets.
	CredentialsRef uuid.UUID

	// Settings holds free-form provider options
	Settings map[string]string

	SyncPolicy    SyncPolicy
	WebhookConfig WebhookConfig
	DataMapping   DataMapping
	RateLimits    RateLimits

	Status     Status
	SyncStats  SyncStats
	Health     HealthState
	LastSyncAt *time.Time
}

// NewIntegration creates an integration in the INACTIVE state after validation
func NewIntegration(name string, t Type, provider string, policy SyncPolicy, limits RateLimits) (*Integration, error) {
	in := &Integration{
		BaseEntity: shared.NewBaseEntity(),
		Name:       name,
		Type:       t,
		Provider:   provider,
		Settings:   make(map[string]string),
		SyncPolicy: policy,
		RateLimits: limits,
		Status:     StatusInactive,
		Health:     HealthState{Status: HealthUnknown},
	}
	if in.SyncPolicy.ConflictStrategy == "" {
		in.SyncPolicy.ConflictStrategy = StrategyLatestWins
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	return in, nil
}

// Validate checks the aggregate invariants
func (i *Integration) Validate() error {
	if i.Name == "" {
		return ErrIntegrationNameEmpty
	}
	if !i.Type.IsValid() || !IsSupported(i.Type, i.Provider) {
		return ErrUnsupportedIntegration
	}
	if i.RateLimits.PerMinute <= 0 || i.RateLimits.PerHour <= 0 {
		return ErrInvalidRateLimits
	}
	if !i.SyncPolicy.Direction.IsValid() {
		return ErrInvalidDirection
	}
	if !i.SyncPolicy.ConflictStrategy.IsValid() {
		return ErrInvalidConflictPolicy
	}
	return nil
}

// IsActive returns true if the integration is in the ACTIVE state
func (i *Integration) IsActive() bool {
	return i.Status == StatusActive
}

// Activate transitions the integration to ACTIVE
func (i *Integration) Activate() error {
	if i.Status == StatusActive {
		return ErrIntegrationActive
	}
	i.Status = StatusActive
	i.SyncStats.ConsecutiveFailures = 0
	i.UpdatedAt = time.Now()
	return nil
}

// Deactivate transitions the integration to INACTIVE
func (i *Integration) Deactivate() {
	i.Status = StatusInactive
	i.UpdatedAt = time.Now()
}

// MarkError transitions the integration to ERROR and records the cause
func (i *Integration) MarkError(message string) {
	i.Status = StatusError
	i.RecordHealthError(message)
	i.UpdatedAt = time.Now()
}

// RecordHealthError appends to the bounded recent-error list
func (i *Integration) RecordHealthError(message string) {
	i.Health.Errors = append(i.Health.Errors, HealthError{
		Message:    message,
		OccurredAt: time.Now(),
	})
	if n := len(i.Health.Errors); n > maxHealthErrors {
		i.Health.Errors = i.Health.Errors[n-maxHealthErrors:]
	}
}

// SetHealth caches the derived health status on the aggregate
func (i *Integration) SetHealth(status HealthStatus, at time.Time) {
	i.Health.Status = status
	i.Health.LastCheckAt = &at
	i.UpdatedAt = time.Now()
}

// consecutiveFailureLimit moves the integration to ERROR when reached
const consecutiveFailureLimit = 3

// RecordRun folds a completed sync run into the aggregate's stats.
// Returns true if repeated failures moved the integration to ERROR.
func (i *Integration) RecordRun(run *SyncRun) bool {
	i.SyncStats.TotalRuns++
	i.SyncStats.LastDurationMs = run.DurationMs
	completed := run.CompletedAt
	i.LastSyncAt = &completed
	i.UpdatedAt = time.Now()

	if run.Status == RunStatusSuccess {
		i.SyncStats.SuccessfulRuns++
		i.SyncStats.ConsecutiveFailures = 0
		return false
	}

	i.SyncStats.FailedRuns++
	i.SyncStats.ConsecutiveFailures++
	if i.SyncStats.ConsecutiveFailures >= consecutiveFailureLimit && i.Status == StatusActive {
		i.Status = StatusError
		return true
	}
	return false
}

// ResolveDirection returns the explicitly requested direction or falls back
// to the configured sync policy
func (i *Integration) ResolveDirection(requested Direction) (Direction, error) {
	if requested == "" {
		requested = i.SyncPolicy.Direction
	}
	if !requested.IsValid() {
		return "", ErrInvalidDirection
	}
	return requested, nil
}
