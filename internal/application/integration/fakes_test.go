package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/synchub/backend/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// In-memory fakes shared across the service tests. The sync engine is
// stateful end to end, so stateful fakes beat call-recording mocks here.
// ---------------------------------------------------------------------------

type memIntegrationRepo struct {
	mu      sync.Mutex
	items   map[uuid.UUID]*integration.Integration
	saveErr error
}

func newMemIntegrationRepo() *memIntegrationRepo {
	return &memIntegrationRepo{items: make(map[uuid.UUID]*integration.Integration)}
}

func (r *memIntegrationRepo) Save(ctx context.Context, in *integration.Integration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	cp := *in
	r.items[in.ID] = &cp
	return nil
}

func (r *memIntegrationRepo) FindByID(ctx context.Context, id uuid.UUID) (*integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.items[id]
	if !ok {
		return nil, integration.ErrIntegrationNotFound
	}
	cp := *in
	return &cp, nil
}

func (r *memIntegrationRepo) FindAll(ctx context.Context, filter integration.IntegrationFilter) ([]integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.Integration
	for _, in := range r.items {
		if filter.Status != nil && in.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && in.Type != *filter.Type {
			continue
		}
		out = append(out, *in)
	}
	return out, nil
}

func (r *memIntegrationRepo) Count(ctx context.Context, filter integration.IntegrationFilter) (int64, error) {
	items, _ := r.FindAll(ctx, filter)
	return int64(len(items)), nil
}

func (r *memIntegrationRepo) FindDueForSync(ctx context.Context, now time.Time) ([]integration.Integration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.Integration
	for _, in := range r.items {
		if !in.IsActive() || !in.SyncPolicy.Enabled || in.SyncPolicy.Frequency <= 0 {
			continue
		}
		if in.LastSyncAt == nil || !now.Before(in.LastSyncAt.Add(in.SyncPolicy.Frequency)) {
			out = append(out, *in)
		}
	}
	return out, nil
}

func (r *memIntegrationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return integration.ErrIntegrationNotFound
	}
	delete(r.items, id)
	return nil
}

type memSyncRunRepo struct {
	mu   sync.Mutex
	runs []integration.SyncRun
}

func (r *memSyncRunRepo) Append(ctx context.Context, run *integration.SyncRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}

func (r *memSyncRunRepo) FindByIntegration(ctx context.Context, integrationID uuid.UUID, filter integration.SyncRunFilter) ([]integration.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.SyncRun
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.IntegrationID != integrationID {
			continue
		}
		if filter.From != nil && run.CompletedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && !run.CompletedAt.Before(*filter.To) {
			continue
		}
		if filter.Status != nil && run.Status != *filter.Status {
			continue
		}
		out = append(out, run)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *memSyncRunRepo) LastSuccessful(ctx context.Context, integrationID uuid.UUID) (*integration.SyncRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.runs) - 1; i >= 0; i-- {
		run := r.runs[i]
		if run.IntegrationID == integrationID && run.Status == integration.RunStatusSuccess {
			cp := run
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memSyncRunRepo) CountByIntegration(ctx context.Context, integrationID uuid.UUID, filter integration.SyncRunFilter) (int64, error) {
	runs, _ := r.FindByIntegration(ctx, integrationID, filter)
	return int64(len(runs)), nil
}

func (r *memSyncRunRepo) all() []integration.SyncRun {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]integration.SyncRun(nil), r.runs...)
}

type memConflictRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*integration.ManualConflict
}

func newMemConflictRepo() *memConflictRepo {
	return &memConflictRepo{items: make(map[uuid.UUID]*integration.ManualConflict)}
}

func (r *memConflictRepo) Save(ctx context.Context, c *integration.ManualConflict) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.items[c.ID] = &cp
	return nil
}

func (r *memConflictRepo) FindByID(ctx context.Context, id uuid.UUID) (*integration.ManualConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.items[id]
	if !ok {
		return nil, integration.ErrConflictNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memConflictRepo) FindOpenByIntegration(ctx context.Context, integrationID uuid.UUID) ([]integration.ManualConflict, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []integration.ManualConflict
	for _, c := range r.items {
		if c.IntegrationID == integrationID && !c.Resolved {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *memConflictRepo) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.items {
		if c.IntegrationID == integrationID {
			delete(r.items, id)
		}
	}
	return nil
}

type memRecordStore struct {
	mu sync.Mutex
	items map[string]integration.LocalRecord
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{items: make(map[string]integration.LocalRecord)}
}

func recordKey(integrationID uuid.UUID, entityType, key string) string {
	return fmt.Sprintf("%s/%s/%s", integrationID, entityType, key)
}

func (s *memRecordStore) Find(ctx context.Context, integrationID uuid.UUID, entityType, key string) (*integration.LocalRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.items[recordKey(integrationID, entityType, key)]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *memRecordStore) Save(ctx context.Context, integrationID uuid.UUID, entityType string, rec integration.Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := recordKey(integrationID, entityType, rec.Key())
	_, existed := s.items[k]
	s.items[k] = integration.LocalRecord{
		IntegrationID: integrationID,
		EntityType:    entityType,
		Key:           rec.Key(),
		Payload:       rec.Clone(),
		ModifiedAt:    rec.ModifiedAt(),
	}
	return !existed, nil
}

func (s *memRecordStore) ListBatch(ctx context.Context, integrationID uuid.UUID, entityType string, offset, limit int) ([]integration.Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []integration.LocalRecord
	for _, rec := range s.items {
		if rec.IntegrationID == integrationID && rec.EntityType == entityType {
			all = append(all, rec)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })
	if offset >= len(all) {
		return nil, false, nil
	}
	end := offset + limit
	hasMore := end < len(all)
	if end > len(all) {
		end = len(all)
	}
	var out []integration.Record
	for _, rec := range all[offset:end] {
		out = append(out, rec.Payload.Clone())
	}
	return out, hasMore, nil
}

func (s *memRecordStore) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, rec := range s.items {
		if rec.IntegrationID == integrationID {
			delete(s.items, k)
		}
	}
	return nil
}

type memWebhookRepo struct {
	mu    sync.Mutex
	items map[uuid.UUID]*integration.WebhookRegistration
}

func newMemWebhookRepo() *memWebhookRepo {
	return &memWebhookRepo{items: make(map[uuid.UUID]*integration.WebhookRegistration)}
}

func (r *memWebhookRepo) Save(ctx context.Context, reg *integration.WebhookRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *reg
	r.items[reg.IntegrationID] = &cp
	return nil
}

func (r *memWebhookRepo) FindByIntegration(ctx context.Context, integrationID uuid.UUID) (*integration.WebhookRegistration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.items[integrationID]
	if !ok {
		return nil, integration.ErrWebhookNotRegistered
	}
	cp := *reg
	return &cp, nil
}

func (r *memWebhookRepo) DeleteByIntegration(ctx context.Context, integrationID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, integrationID)
	return nil
}

type memCredentialStore struct {
	mu    sync.Mutex
	items map[uuid.UUID]integration.Credentials
}

func newMemCredentialStore() *memCredentialStore {
	return &memCredentialStore{items: make(map[uuid.UUID]integration.Credentials)}
}

func (s *memCredentialStore) Encrypt(ctx context.Context, plaintext integration.Credentials) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := uuid.New()
	cp := make(integration.Credentials, len(plaintext))
	for k, v := range plaintext {
		cp[k] = v
	}
	s.items[ref] = cp
	return ref, nil
}

func (s *memCredentialStore) Decrypt(ctx context.Context, ref uuid.UUID) (integration.Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	creds, ok := s.items[ref]
	if !ok {
		return nil, integration.ErrCredentialsNotFound
	}
	return creds, nil
}

func (s *memCredentialStore) Delete(ctx context.Context, ref uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[ref]; !ok {
		return integration.ErrCredentialsNotFound
	}
	delete(s.items, ref)
	return nil
}

func (s *memCredentialStore) has(ref uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[ref]
	return ok
}

// fakeLimiter grants a fixed number of permits; -1 means unlimited
type fakeLimiter struct {
	mu         sync.Mutex
	grants     int
	acquired   int
	configured map[uuid.UUID]integration.RateLimits
	removed    []uuid.UUID
	minuteLeft int
	hourLeft   int
}

func newFakeLimiter() *fakeLimiter {
	return &fakeLimiter{
		grants:     -1,
		configured: make(map[uuid.UUID]integration.RateLimits),
		minuteLeft: 100,
		hourLeft:   1000,
	}
}

func (l *fakeLimiter) Configure(id uuid.UUID, limits integration.RateLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.configured[id] = limits
}

func (l *fakeLimiter) Remove(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.configured, id)
	l.removed = append(l.removed, id)
}

func (l *fakeLimiter) TryAcquire(id uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.grants == 0 {
		return false
	}
	if l.grants > 0 {
		l.grants--
	}
	l.acquired++
	return true
}

func (l *fakeLimiter) Headroom(id uuid.UUID) (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minuteLeft, l.hourLeft
}

type memIdempotencyStore struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{seen: make(map[string]bool)}
}

func (s *memIdempotencyStore) MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.seen[eventID] {
		return false, nil
	}
	s.seen[eventID] = true
	return true, nil
}

func (s *memIdempotencyStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seen[eventID], nil
}

func (s *memIdempotencyStore) Close() error { return nil }

// ---------------------------------------------------------------------------
// Provider fakes
// ---------------------------------------------------------------------------

type fakeConnection struct {
	mu      sync.Mutex
	pingErr error
	fetchFn func(entityType, cursor string, size int) (*integration.Batch, error)
	pushFn  func(entityType string, records []integration.Record) (*integration.PushResult, error)
	pushed  [][]integration.Record
	closed  bool
}

func (c *fakeConnection) Ping(ctx context.Context) error {
	return c.pingErr
}

func (c *fakeConnection) FetchBatch(ctx context.Context, entityType, cursor string, size int) (*integration.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.fetchFn != nil {
		return c.fetchFn(entityType, cursor, size)
	}
	return &integration.Batch{}, nil
}

func (c *fakeConnection) PushBatch(ctx context.Context, entityType string, records []integration.Record) (*integration.PushResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.pushed = append(c.pushed, records)
	c.mu.Unlock()
	if c.pushFn != nil {
		return c.pushFn(entityType, records)
	}
	return &integration.PushResult{Created: len(records)}, nil
}

func (c *fakeConnection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConnection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeAdapter struct {
	typ        integration.Type
	provider   string
	entities   []string
	testErr    error
	conn       *fakeConnection
	connectErr error

	registerErr    error
	registrationID string
	secret         string
	unregistered   []string

	verifyErr error
	parseFn   func(payload []byte) (*integration.WebhookEvent, error)
}

func newFakeAdapter(t integration.Type, provider string) *fakeAdapter {
	return &fakeAdapter{
		typ:            t,
		provider:       provider,
		entities:       []string{"contacts"},
		conn:           &fakeConnection{},
		registrationID: "reg-1",
		secret:         "hook-secret",
	}
}

func (a *fakeAdapter) Type() integration.Type { return a.typ }
func (a *fakeAdapter) Provider() string       { return a.provider }
func (a *fakeAdapter) EntityTypes() []string  { return a.entities }

func (a *fakeAdapter) TestConnection(ctx context.Context, creds integration.Credentials) error {
	return a.testErr
}

func (a *fakeAdapter) Connect(ctx context.Context, creds integration.Credentials) (integration.Connection, error) {
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	return a.conn, nil
}

func (a *fakeAdapter) RegisterWebhook(ctx context.Context, creds integration.Credentials, url string, events []string) (string, string, error) {
	if a.registerErr != nil {
		return "", "", a.registerErr
	}
	return a.registrationID, a.secret, nil
}

func (a *fakeAdapter) UnregisterWebhook(ctx context.Context, creds integration.Credentials, registrationID string) error {
	a.unregistered = append(a.unregistered, registrationID)
	return nil
}

func (a *fakeAdapter) VerifySignature(payload []byte, headers map[string]string, secret string) error {
	return a.verifyErr
}

func (a *fakeAdapter) ParseEvent(payload []byte) (*integration.WebhookEvent, error) {
	if a.parseFn != nil {
		return a.parseFn(payload)
	}
	return &integration.WebhookEvent{
		EventID:      "evt-1",
		EventType:    "contact.updated",
		EntityTypes:  []string{"contacts"},
		RemoteChange: true,
		OccurredAt:   time.Now(),
	}, nil
}

type fakeRegistry struct {
	adapters map[string]integration.ProviderAdapter
}

func newFakeRegistry(adapters ...integration.ProviderAdapter) *fakeRegistry {
	r := &fakeRegistry{adapters: make(map[string]integration.ProviderAdapter)}
	for _, a := range adapters {
		r.adapters[fmt.Sprintf("%s/%s", a.Type(), a.Provider())] = a
	}
	return r
}

func (r *fakeRegistry) Get(t integration.Type, provider string) (integration.ProviderAdapter, error) {
	a, ok := r.adapters[fmt.Sprintf("%s/%s", t, provider)]
	if !ok {
		return nil, integration.ErrProviderNotRegistered
	}
	return a, nil
}

func (r *fakeRegistry) List() []integration.ProviderAdapter {
	var out []integration.ProviderAdapter
	for _, a := range r.adapters {
		out = append(out, a)
	}
	return out
}

// staticConnections serves a fixed connection map
type staticConnections struct {
	mu    sync.Mutex
	conns map[uuid.UUID]integration.Connection
}

func newStaticConnections() *staticConnections {
	return &staticConnections{conns: make(map[uuid.UUID]integration.Connection)}
}

func (s *staticConnections) set(id uuid.UUID, conn integration.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[id] = conn
}

func (s *staticConnections) Connection(id uuid.UUID) (integration.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, ok := s.conns[id]
	if !ok {
		return nil, integration.ErrIntegrationNotActive
	}
	return conn, nil
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

func testIntegration(t integration.Type, provider string) *integration.Integration {
	in, err := integration.NewIntegration("Test Integration", t, provider, integration.SyncPolicy{
		Enabled:          true,
		Frequency:        time.Hour,
		Direction:        integration.DirectionBidirectional,
		ConflictStrategy: integration.StrategyLatestWins,
		BatchSize:        10,
		Entities:         []string{"contacts"},
	}, integration.RateLimits{PerMinute: 60, PerHour: 1000})
	if err != nil {
		panic(err)
	}
	return in
}

func activeIntegration(repo *memIntegrationRepo, t integration.Type, provider string) *integration.Integration {
	in := testIntegration(t, provider)
	if err := in.Activate(); err != nil {
		panic(err)
	}
	if err := repo.Save(context.Background(), in); err != nil {
		panic(err)
	}
	return in
}
