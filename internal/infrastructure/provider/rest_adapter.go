package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/synchub/backend/internal/domain/integration"
)

// maxResponseSize caps provider API responses (10MB)
const maxResponseSize = 10 * 1024 * 1024

// RESTAdapterConfig configures one REST provider adapter instance
type RESTAdapterConfig struct {
	Type           integration.Type
	Provider       string
	BaseURL        string
	TimeoutSeconds int
	Entities       []string
}

// Validate checks the configuration
func (c *RESTAdapterConfig) Validate() error {
	if c.Provider == "" {
		return fmt.Errorf("provider: provider name is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("provider: invalid base URL %q: %w", c.BaseURL, err)
	}
	if len(c.Entities) == 0 {
		return fmt.Errorf("provider: at least one entity type is required")
	}
	return nil
}

// RESTAdapter implements ProviderAdapter against a JSON-over-HTTP provider
// API. Authentication uses the api_key credential as a bearer token.
type RESTAdapter struct {
	config     RESTAdapterConfig
	httpClient *http.Client
}

var _ integration.ProviderAdapter = (*RESTAdapter)(nil)

// NewRESTAdapter creates a new REST adapter with the given configuration
func NewRESTAdapter(config RESTAdapterConfig) (*RESTAdapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	timeout := config.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &RESTAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

// Type returns the integration category this adapter serves
func (a *RESTAdapter) Type() integration.Type {
	return a.config.Type
}

// Provider returns the vendor name this adapter handles
func (a *RESTAdapter) Provider() string {
	return a.config.Provider
}

// EntityTypes returns the entity types this provider exposes
func (a *RESTAdapter) EntityTypes() []string {
	out := make([]string, len(a.config.Entities))
	copy(out, a.config.Entities)
	return out
}

// TestConnection probes the provider's ping endpoint
func (a *RESTAdapter) TestConnection(ctx context.Context, creds integration.Credentials) error {
	return a.doJSON(ctx, creds, http.MethodGet, "/ping", nil, nil)
}

// Connect establishes a live session after verifying reachability
func (a *RESTAdapter) Connect(ctx context.Context, creds integration.Credentials) (integration.Connection, error) {
	if err := a.TestConnection(ctx, creds); err != nil {
		return nil, err
	}
	return &restConnection{adapter: a, creds: creds}, nil
}

// RegisterWebhook requests a delivery endpoint on the provider side
func (a *RESTAdapter) RegisterWebhook(ctx context.Context, creds integration.Credentials, callbackURL string, events []string) (string, string, error) {
	req := map[string]any{"url": callbackURL, "events": events}
	var resp struct {
		RegistrationID string `json:"registration_id"`
		Secret         string `json:"secret"`
	}
	if err := a.doJSON(ctx, creds, http.MethodPost, "/webhooks", req, &resp); err != nil {
		return "", "", err
	}
	if resp.RegistrationID == "" || resp.Secret == "" {
		return "", "", fmt.Errorf("provider %s: incomplete webhook registration response", a.config.Provider)
	}
	return resp.RegistrationID, resp.Secret, nil
}

// UnregisterWebhook removes a provider-side webhook registration
func (a *RESTAdapter) UnregisterWebhook(ctx context.Context, creds integration.Credentials, registrationID string) error {
	path := "/webhooks/" + url.PathEscape(registrationID)
	return a.doJSON(ctx, creds, http.MethodDelete, path, nil, nil)
}

// VerifySignature checks an inbound payload against the shared secret
func (a *RESTAdapter) VerifySignature(payload []byte, headers map[string]string, secret string) error {
	return VerifySignature(payload, headers, secret)
}

// ParseEvent normalizes a verified provider payload
func (a *RESTAdapter) ParseEvent(payload []byte) (*integration.WebhookEvent, error) {
	var raw struct {
		EventID     string         `json:"event_id"`
		EventType   string         `json:"event_type"`
		EntityTypes []string       `json:"entity_types"`
		OccurredAt  time.Time      `json:"occurred_at"`
		Data        map[string]any `json:"data"`
	}
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("provider %s: parse event: %w", a.config.Provider, err)
	}
	if raw.EventID == "" || raw.EventType == "" {
		return nil, fmt.Errorf("provider %s: event missing id or type", a.config.Provider)
	}
	return &integration.WebhookEvent{
		EventID:      raw.EventID,
		EventType:    raw.EventType,
		EntityTypes:  raw.EntityTypes,
		RemoteChange: remoteChangeEvent(raw.EventType),
		OccurredAt:   raw.OccurredAt,
		Payload:      raw.Data,
	}, nil
}

// remoteChangeEvent reports whether the provider event implies remote data
// changed and a resync is worthwhile
func remoteChangeEvent(eventType string) bool {
	switch eventType {
	case "ping", "webhook.verified":
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Connection
// ---------------------------------------------------------------------------

type restConnection struct {
	adapter *RESTAdapter
	creds   integration.Credentials

	mu     sync.Mutex
	closed bool
}

var _ integration.Connection = (*restConnection)(nil)

func (c *restConnection) guard() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return integration.ErrConnectionClosed
	}
	return nil
}

// Ping verifies the session is still usable
func (c *restConnection) Ping(ctx context.Context) error {
	if err := c.guard(); err != nil {
		return err
	}
	return c.adapter.TestConnection(ctx, c.creds)
}

// FetchBatch pulls one page of records of the given entity type
func (c *restConnection) FetchBatch(ctx context.Context, entityType, cursor string, size int) (*integration.Batch, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	query := url.Values{}
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if size > 0 {
		query.Set("limit", fmt.Sprintf("%d", size))
	}
	path := "/" + url.PathEscape(entityType)
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var resp struct {
		Records    []integration.Record `json:"records"`
		NextCursor string               `json:"next_cursor"`
		HasMore    bool                 `json:"has_more"`
	}
	if err := c.adapter.doJSON(ctx, c.creds, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &integration.Batch{
		Records:    resp.Records,
		NextCursor: resp.NextCursor,
		HasMore:    resp.HasMore,
	}, nil
}

// PushBatch sends one batch of records of the given entity type
func (c *restConnection) PushBatch(ctx context.Context, entityType string, records []integration.Record) (*integration.PushResult, error) {
	if err := c.guard(); err != nil {
		return nil, err
	}

	req := map[string]any{"records": records}
	var resp struct {
		Created    int `json:"created"`
		Updated    int `json:"updated"`
		Duplicates int `json:"duplicates"`
		Failures   []struct {
			RecordKey string `json:"record_key"`
			Reason    string `json:"reason"`
		} `json:"failures"`
	}
	path := "/" + url.PathEscape(entityType) + "/batch"
	if err := c.adapter.doJSON(ctx, c.creds, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	result := &integration.PushResult{
		Created:    resp.Created,
		Updated:    resp.Updated,
		Duplicates: resp.Duplicates,
	}
	for _, f := range resp.Failures {
		result.Failures = append(result.Failures, integration.PushFailure{
			RecordKey: f.RecordKey,
			Reason:    f.Reason,
		})
	}
	return result, nil
}

// Close tears the session down
func (c *restConnection) Close(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ---------------------------------------------------------------------------
// HTTP plumbing
// ---------------------------------------------------------------------------

// doJSON performs one authenticated JSON request against the provider API
func (a *RESTAdapter) doJSON(ctx context.Context, creds integration.Credentials, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("provider %s: marshal request: %w", a.config.Provider, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("provider %s: build request: %w", a.config.Provider, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := creds["api_key"]; key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", integration.ErrConnectionFailed, a.config.Provider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: read response: %v", integration.ErrConnectionFailed, a.config.Provider, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: provider %s throttled the request", integration.ErrRateLimitExceeded, a.config.Provider)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: %s returned status %d", integration.ErrConnectionFailed, a.config.Provider, resp.StatusCode)
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("provider %s: decode response: %w", a.config.Provider, err)
		}
	}
	return nil
}
