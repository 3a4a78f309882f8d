package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/synchub/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Integration
// ---------------------------------------------------------------------------

// IntegrationModel is the persistence model for the Integration aggregate.
// Nested policy and stats values are stored as JSON columns.
type IntegrationModel struct {
	BaseModel
	Name           string             `gorm:"type:varchar(120);not null"`
	Type           integration.Type   `gorm:"type:varchar(20);not null;index:idx_integrations_type_provider,priority:1"`
	Provider       string             `gorm:"type:varchar(50);not null;index:idx_integrations_type_provider,priority:2"`
	Status         integration.Status `gorm:"type:varchar(20);not null;index"`
	CredentialsRef uuid.UUID          `gorm:"type:uuid;not null"`
	SettingsJSON   string             `gorm:"type:jsonb;column:settings"`
	SyncPolicyJSON string             `gorm:"type:jsonb;column:sync_policy"`
	WebhookJSON    string             `gorm:"type:jsonb;column:webhook_config"`
	RateLimitsJSON string             `gorm:"type:jsonb;column:rate_limits"`
	MappingJSON    string             `gorm:"type:jsonb;column:data_mapping"`
	StatsJSON      string             `gorm:"type:jsonb;column:sync_stats"`
	HealthJSON     string             `gorm:"type:jsonb;column:health_state"`
	LastSyncAt     *time.Time         `gorm:"index"`
}

// TableName returns the table name for GORM
func (IntegrationModel) TableName() string {
	return "integrations"
}

// ToDomain converts the persistence model to a domain Integration aggregate.
func (m *IntegrationModel) ToDomain() *integration.Integration {
	i := &integration.Integration{
		BaseEntity:     m.BaseModel.ToDomain(),
		Name:           m.Name,
		Type:           m.Type,
		Provider:       m.Provider,
		Status:         m.Status,
		CredentialsRef: m.CredentialsRef,
		Settings:       make(map[string]string),
		LastSyncAt:     m.LastSyncAt,
	}
	unmarshalJSON(m.SettingsJSON, &i.Settings)
	unmarshalJSON(m.SyncPolicyJSON, &i.SyncPolicy)
	unmarshalJSON(m.WebhookJSON, &i.WebhookConfig)
	unmarshalJSON(m.RateLimitsJSON, &i.RateLimits)
	unmarshalJSON(m.MappingJSON, &i.DataMapping)
	unmarshalJSON(m.StatsJSON, &i.SyncStats)
	unmarshalJSON(m.HealthJSON, &i.Health)
	return i
}

// FromDomain populates the persistence model from a domain Integration aggregate.
func (m *IntegrationModel) FromDomain(i *integration.Integration) {
	m.BaseModel.FromDomainBaseEntity(i.BaseEntity)
	m.Name = i.Name
	m.Type = i.Type
	m.Provider = i.Provider
	m.Status = i.Status
	m.CredentialsRef = i.CredentialsRef
	m.SettingsJSON = marshalJSON(i.Settings)
	m.SyncPolicyJSON = marshalJSON(i.SyncPolicy)
	m.WebhookJSON = marshalJSON(i.WebhookConfig)
	m.RateLimitsJSON = marshalJSON(i.RateLimits)
	m.MappingJSON = marshalJSON(i.DataMapping)
	m.StatsJSON = marshalJSON(i.SyncStats)
	m.HealthJSON = marshalJSON(i.Health)
	m.LastSyncAt = i.LastSyncAt
}

// IntegrationModelFromDomain creates a new persistence model from a domain Integration.
func IntegrationModelFromDomain(i *integration.Integration) *IntegrationModel {
	m := &IntegrationModel{}
	m.FromDomain(i)
	return m
}

// ---------------------------------------------------------------------------
// SyncRun ledger
// ---------------------------------------------------------------------------

// SyncRunModel is the persistence model for a completed SyncRun ledger entry.
// Rows are append-only; nothing updates or deletes them.
type SyncRunModel struct {
	SyncID        uuid.UUID             `gorm:"type:uuid;primary_key"`
	IntegrationID uuid.UUID             `gorm:"type:uuid;not null;index:idx_sync_runs_integration_started,priority:1"`
	Direction     integration.Direction `gorm:"type:varchar(20);not null"`
	EntitiesJSON  string                `gorm:"type:jsonb;column:entities"`
	Status        integration.RunStatus `gorm:"type:varchar(20);not null;index"`
	InboundJSON   string                `gorm:"type:jsonb;column:inbound"`
	OutboundJSON  string                `gorm:"type:jsonb;column:outbound"`
	Conflicts     int                   `gorm:"not null;default:0"`
	Duplicates    int                   `gorm:"not null;default:0"`
	DurationMs    int64                 `gorm:"not null;default:0"`
	StartedAt     time.Time             `gorm:"not null;index:idx_sync_runs_integration_started,priority:2,sort:desc"`
	CompletedAt   time.Time             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the persistence model to a domain SyncRun.
func (m *SyncRunModel) ToDomain() *integration.SyncRun {
	run := &integration.SyncRun{
		SyncID:        m.SyncID,
		IntegrationID: m.IntegrationID,
		Direction:     m.Direction,
		Status:        m.Status,
		Conflicts:     m.Conflicts,
		Duplicates:    m.Duplicates,
		DurationMs:    m.DurationMs,
		StartedAt:     m.StartedAt,
		CompletedAt:   m.CompletedAt,
	}
	unmarshalJSON(m.EntitiesJSON, &run.Entities)
	unmarshalJSON(m.InboundJSON, &run.Inbound)
	unmarshalJSON(m.OutboundJSON, &run.Outbound)
	return run
}

// SyncRunModelFromDomain creates a new persistence model from a domain SyncRun.
func SyncRunModelFromDomain(run *integration.SyncRun) *SyncRunModel {
	return &SyncRunModel{
		SyncID:        run.SyncID,
		IntegrationID: run.IntegrationID,
		Direction:     run.Direction,
		EntitiesJSON:  marshalJSON(run.Entities),
		Status:        run.Status,
		InboundJSON:   marshalJSON(run.Inbound),
		OutboundJSON:  marshalJSON(run.Outbound),
		Conflicts:     run.Conflicts,
		Duplicates:    run.Duplicates,
		DurationMs:    run.DurationMs,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}

// ---------------------------------------------------------------------------
// Webhook registrations
// ---------------------------------------------------------------------------

// WebhookRegistrationModel is the persistence model for a provider-side
// webhook registration.
type WebhookRegistrationModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	IntegrationID  uuid.UUID `gorm:"type:uuid;not null;index"`
	URL            string    `gorm:"type:varchar(500);not null"`
	Secret         string    `gorm:"type:varchar(200);not null"`
	EventsJSON     string    `gorm:"type:jsonb;column:events"`
	RegistrationID string    `gorm:"type:varchar(100);not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (WebhookRegistrationModel) TableName() string {
	return "webhook_registrations"
}

// ToDomain converts the persistence model to a domain WebhookRegistration.
func (m *WebhookRegistrationModel) ToDomain() *integration.WebhookRegistration {
	reg := &integration.WebhookRegistration{
		ID:             m.ID,
		IntegrationID:  m.IntegrationID,
		URL:            m.URL,
		Secret:         m.Secret,
		RegistrationID: m.RegistrationID,
		CreatedAt:      m.CreatedAt,
	}
	unmarshalJSON(m.EventsJSON, &reg.Events)
	return reg
}

// WebhookRegistrationModelFromDomain creates a new persistence model from a
// domain WebhookRegistration.
func WebhookRegistrationModelFromDomain(reg *integration.WebhookRegistration) *WebhookRegistrationModel {
	return &WebhookRegistrationModel{
		ID:             reg.ID,
		IntegrationID:  reg.IntegrationID,
		URL:            reg.URL,
		Secret:         reg.Secret,
		EventsJSON:     marshalJSON(reg.Events),
		RegistrationID: reg.RegistrationID,
		CreatedAt:      reg.CreatedAt,
	}
}

// ---------------------------------------------------------------------------
// Manual conflicts
// ---------------------------------------------------------------------------

// ManualConflictModel is the persistence model for a deferred sync conflict
// awaiting operator resolution.
type ManualConflictModel struct {
	BaseModel
	IntegrationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_manual_conflicts_integration,priority:1"`
	EntityType    string     `gorm:"type:varchar(50);not null"`
	RecordKey     string     `gorm:"type:varchar(200);not null"`
	LocalJSON     string     `gorm:"type:jsonb;column:local_record"`
	RemoteJSON    string     `gorm:"type:jsonb;column:remote_record"`
	DetectedAt    time.Time  `gorm:"not null"`
	Resolved      bool       `gorm:"not null;default:false;index:idx_manual_conflicts_integration,priority:2"`
	Resolution    string     `gorm:"type:varchar(20)"`
	ResolvedAt    *time.Time `gorm:""`
}

// TableName returns the table name for GORM
func (ManualConflictModel) TableName() string {
	return "manual_conflicts"
}

// ToDomain converts the persistence model to a domain ManualConflict.
func (m *ManualConflictModel) ToDomain() *integration.ManualConflict {
	c := &integration.ManualConflict{
		BaseEntity:    m.BaseModel.ToDomain(),
		IntegrationID: m.IntegrationID,
		EntityType:    m.EntityType,
		RecordKey:     m.RecordKey,
		DetectedAt:    m.DetectedAt,
		Resolved:      m.Resolved,
		Resolution:    m.Resolution,
		ResolvedAt:    m.ResolvedAt,
	}
	unmarshalJSON(m.LocalJSON, &c.Local)
	unmarshalJSON(m.RemoteJSON, &c.Remote)
	return c
}

// ManualConflictModelFromDomain creates a new persistence model from a domain
// ManualConflict.
func ManualConflictModelFromDomain(c *integration.ManualConflict) *ManualConflictModel {
	m := &ManualConflictModel{
		IntegrationID: c.IntegrationID,
		EntityType:    c.EntityType,
		RecordKey:     c.RecordKey,
		LocalJSON:     marshalJSON(c.Local),
		RemoteJSON:    marshalJSON(c.Remote),
		DetectedAt:    c.DetectedAt,
		Resolved:      c.Resolved,
		Resolution:    c.Resolution,
		ResolvedAt:    c.ResolvedAt,
	}
	m.BaseModel.FromDomainBaseEntity(c.BaseEntity)
	return m
}

// ---------------------------------------------------------------------------
// Encrypted credentials
// ---------------------------------------------------------------------------

// CredentialModel stores an encrypted credential blob. Only ciphertext ever
// reaches this table; plaintext stays inside the credential store.
type CredentialModel struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key"`
	Ciphertext []byte    `gorm:"type:bytea;not null"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CredentialModel) TableName() string {
	return "integration_credentials"
}

// ---------------------------------------------------------------------------
// Local entity records
// ---------------------------------------------------------------------------

// EntityRecordModel is the persistence model for the engine-side copy of one
// synchronized record.
type EntityRecordModel struct {
	ID            uuid.UUID `gorm:"type:uuid;primary_key"`
	IntegrationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_entity_records_key,priority:1"`
	EntityType    string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_entity_records_key,priority:2"`
	RecordKey     string    `gorm:"type:varchar(200);not null;uniqueIndex:idx_entity_records_key,priority:3"`
	PayloadJSON   string    `gorm:"type:jsonb;column:payload"`
	ModifiedAt    time.Time `gorm:"not null"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (EntityRecordModel) TableName() string {
	return "entity_records"
}

// ToDomain converts the persistence model to a domain LocalRecord.
func (m *EntityRecordModel) ToDomain() *integration.LocalRecord {
	rec := &integration.LocalRecord{
		IntegrationID: m.IntegrationID,
		EntityType:    m.EntityType,
		Key:           m.RecordKey,
		Payload:       make(integration.Record),
		ModifiedAt:    m.ModifiedAt,
	}
	unmarshalJSON(m.PayloadJSON, &rec.Payload)
	return rec
}

// EntityRecordModelFromDomain creates a new persistence model from a domain
// LocalRecord.
func EntityRecordModelFromDomain(rec *integration.LocalRecord) *EntityRecordModel {
	now := time.Now()
	return &EntityRecordModel{
		ID:            uuid.New(),
		IntegrationID: rec.IntegrationID,
		EntityType:    rec.EntityType,
		RecordKey:     rec.Key,
		PayloadJSON:   marshalJSON(rec.Payload),
		ModifiedAt:    rec.ModifiedAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// MarshalRecord serializes a record payload for storage
func MarshalRecord(rec integration.Record) string {
	return marshalJSON(rec)
}

// ---------------------------------------------------------------------------
// JSON column helpers
// ---------------------------------------------------------------------------

func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalJSON(s string, dst any) {
	if s == "" {
		return
	}
	_ = json.Unmarshal([]byte(s), dst)
}
