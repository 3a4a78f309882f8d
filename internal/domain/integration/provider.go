package integration

import (
	"context"
	"time"
)

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// Record is one logical data record exchanged with a provider
type Record map[string]any

// Key returns the record's stable identifier, or "" if none is present
func (r Record) Key() string {
	for _, k := range []string{"id", "external_id", "record_id"} {
		if v, ok := r[k].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// ModifiedAt returns the record's last-modification timestamp.
// A zero time is returned when the record carries no usable timestamp.
func (r Record) ModifiedAt() time.Time {
	for _, k := range []string{"modified_at", "updated_at"} {
		switch v := r[k].(type) {
		case time.Time:
			return v
		case string:
			if t, err := time.Parse(time.RFC3339, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ---------------------------------------------------------------------------
// Provider Port
// ---------------------------------------------------------------------------

// Credentials is decrypted provider credential material. Instances must be
// short-lived: decrypted for one call sequence and then discarded.
type Credentials map[string]string

// Batch is one page of records fetched from a provider
type Batch struct {
	Records    []Record
	NextCursor string
	HasMore    bool
}

// PushFailure describes one record a provider rejected during a push
type PushFailure struct {
	RecordKey string
	Reason    string
}

// PushResult is the provider-side outcome of pushing one batch
type PushResult struct {
	Created    int
	Updated    int
	Duplicates int
	Failures   []PushFailure
}

// WebhookEvent is a provider event normalized into engine vocabulary
type WebhookEvent struct {
	// EventID is the provider-assigned event identifier used for replay detection
	EventID string
	// EventType is the provider event name (e.g. "contact.updated")
	EventType string
	// EntityTypes are the engine entity types the event affects
	EntityTypes []string
	// RemoteChange is true when the event implies remote-side data changed
	RemoteChange bool
	// OccurredAt is when the event happened on the provider side
	OccurredAt time.Time
	// Payload is the parsed provider payload
	Payload map[string]any
}

// Connection is a live provider-specific session bound 1:1 to an active
// integration. It is owned by the connection manager; the sync engine
// references it but never closes or replaces it.
type Connection interface {
	// Ping verifies the session is still usable without mutating remote state
	Ping(ctx context.Context) error

	// FetchBatch pulls one page of records of the given entity type
	FetchBatch(ctx context.Context, entityType, cursor string, size int) (*Batch, error)

	// PushBatch sends one batch of records of the given entity type
	PushBatch(ctx context.Context, entityType string, records []Record) (*PushResult, error)

	// Close tears the session down
	Close(ctx context.Context) error
}

// ProviderAdapter is the port one concrete provider implements. The engine
// is provider-agnostic and depends only on this contract.
type ProviderAdapter interface {
	// Type returns the integration category this adapter serves
	Type() Type

	// Provider returns the concrete vendor name this adapter handles
	Provider() string

	// TestConnection performs a lightweight reachability/auth probe.
	// It must not mutate remote state.
	TestConnection(ctx context.Context, creds Credentials) error

	// Connect establishes a live session
	Connect(ctx context.Context, creds Credentials) (Connection, error)

	// EntityTypes returns the entity types this provider exposes
	EntityTypes() []string

	// RegisterWebhook requests a delivery endpoint on the provider side and
	// returns the provider registration ID and the shared signing secret
	RegisterWebhook(ctx context.Context, creds Credentials, url string, events []string) (registrationID, secret string, err error)

	// UnregisterWebhook removes a provider-side webhook registration
	UnregisterWebhook(ctx context.Context, creds Credentials, registrationID string) error

	// VerifySignature checks an inbound payload against the shared secret.
	// It returns ErrInvalidSignature when verification fails.
	VerifySignature(payload []byte, headers map[string]string, secret string) error

	// ParseEvent normalizes a verified provider payload
	ParseEvent(payload []byte) (*WebhookEvent, error)
}

// ProviderRegistry resolves the adapter for a configured integration
type ProviderRegistry interface {
	// Get returns the adapter for the (type, provider) pair or
	// ErrProviderNotRegistered
	Get(t Type, provider string) (ProviderAdapter, error)

	// List returns all registered adapters
	List() []ProviderAdapter
}
