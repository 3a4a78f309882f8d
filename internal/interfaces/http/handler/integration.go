package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/synchub/backend/internal/application/integration"
	"github.com/synchub/backend/internal/domain/integration"
)

// IntegrationHandler handles integration management API endpoints
type IntegrationHandler struct {
	BaseHandler
	registry    *syncapp.RegistryService
	connections *syncapp.ConnectionService
	syncs       *syncapp.SyncService
	health      *syncapp.HealthService
	analytics   *syncapp.AnalyticsService
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(
	registry *syncapp.RegistryService,
	connections *syncapp.ConnectionService,
	syncs *syncapp.SyncService,
	health *syncapp.HealthService,
	analytics *syncapp.AnalyticsService,
) *IntegrationHandler {
	return &IntegrationHandler{
		registry:    registry,
		connections: connections,
		syncs:       syncs,
		health:      health,
		analytics:   analytics,
	}
}

// ---------------------------------------------------------------------------
// Request DTOs
// ---------------------------------------------------------------------------

// SyncPolicyRequest configures scheduled synchronization
// @Description Sync policy configuration
type SyncPolicyRequest struct {
	Enabled          bool     `json:"enabled" example:"true"`
	FrequencySecs    int      `json:"frequency_secs" binding:"omitempty,min=1" example:"3600"`
	Direction        string   `json:"direction" binding:"omitempty,oneof=INBOUND OUTBOUND BIDIRECTIONAL" example:"BIDIRECTIONAL"`
	ConflictStrategy string   `json:"conflict_strategy" binding:"omitempty,oneof=LATEST_WINS SOURCE_WINS TARGET_WINS MANUAL" example:"LATEST_WINS"`
	BatchSize        int      `json:"batch_size" binding:"omitempty,min=1,max=1000" example:"100"`
	Entities         []string `json:"entities" example:"contacts,deals"`
}

// WebhookConfigRequest configures inbound webhook delivery
// @Description Webhook configuration
type WebhookConfigRequest struct {
	Enabled     bool     `json:"enabled" example:"true"`
	Events      []string `json:"events" example:"contact.updated,deal.created"`
	CallbackURL string   `json:"callback_url" binding:"omitempty,url" example:"https://hooks.example.com/synchub"`
}

// RateLimitsRequest bounds request volume toward the provider
// @Description Rate limit configuration
type RateLimitsRequest struct {
	PerMinute int `json:"per_minute" binding:"required,min=1" example:"60"`
	PerHour   int `json:"per_hour" binding:"required,min=1" example:"1000"`
}

// TransformRequest is one mapping transform step
type TransformRequest struct {
	Field string            `json:"field" binding:"required"`
	Kind  string            `json:"kind" binding:"required"`
	Args  map[string]string `json:"args"`
}

// ValidationRuleRequest is one post-transform validation rule
type ValidationRuleRequest struct {
	Name  string            `json:"name" binding:"required"`
	Field string            `json:"field" binding:"required"`
	Kind  string            `json:"kind" binding:"required"`
	Args  map[string]string `json:"args"`
}

// DataMappingRequest configures the field mapping pipeline
// @Description Field mapping, transform and validation configuration
type DataMappingRequest struct {
	Fields     map[string]string       `json:"fields"`
	Transforms []TransformRequest      `json:"transforms"`
	Rules      []ValidationRuleRequest `json:"rules"`
}

// CreateIntegrationRequest represents a request to register an integration
// @Description Request body for registering a new integration
type CreateIntegrationRequest struct {
	Name        string                `json:"name" binding:"required,min=1,max=200" example:"Production HubSpot"`
	Type        string                `json:"type" binding:"required" example:"SALES"`
	Provider    string                `json:"provider" binding:"required" example:"hubspot"`
	Credentials map[string]string     `json:"credentials" binding:"required"`
	Settings    map[string]string     `json:"settings"`
	SyncPolicy  SyncPolicyRequest     `json:"sync_policy"`
	Webhook     *WebhookConfigRequest `json:"webhook"`
	Mapping     *DataMappingRequest   `json:"mapping"`
	RateLimits  RateLimitsRequest     `json:"rate_limits" binding:"required"`
}

// UpdateIntegrationRequest represents a partial configuration update
// @Description Request body for updating an integration; omitted fields are unchanged
type UpdateIntegrationRequest struct {
	Name        *string               `json:"name" binding:"omitempty,min=1,max=200"`
	Credentials map[string]string     `json:"credentials"`
	Settings    map[string]string     `json:"settings"`
	SyncPolicy  *SyncPolicyRequest    `json:"sync_policy"`
	Webhook     *WebhookConfigRequest `json:"webhook"`
	Mapping     *DataMappingRequest   `json:"mapping"`
	RateLimits  *RateLimitsRequest    `json:"rate_limits"`
}

// SyncRequest selects what a manually triggered sync run covers
// @Description Request body for triggering a sync run
type SyncRequest struct {
	Direction string   `json:"direction" binding:"omitempty,oneof=INBOUND OUTBOUND BIDIRECTIONAL" example:"INBOUND"`
	Entities  []string `json:"entities" example:"contacts"`
}

// BatchSyncRequest triggers sync runs for multiple integrations
// @Description Request body for triggering a batch of sync runs
type BatchSyncRequest struct {
	IntegrationIDs []string `json:"integration_ids" binding:"required,min=1,dive,uuid"`
	Direction      string   `json:"direction" binding:"omitempty,oneof=INBOUND OUTBOUND BIDIRECTIONAL"`
	Entities       []string `json:"entities"`
}

// ResolveConflictRequest settles a queued manual conflict
// @Description Request body for resolving a manual conflict
type ResolveConflictRequest struct {
	Resolution string `json:"resolution" binding:"required,oneof=APPLY_LOCAL APPLY_REMOTE" example:"APPLY_REMOTE"`
}

// ListIntegrationsRequest filters the integration listing
type ListIntegrationsRequest struct {
	Type     string `form:"type"`
	Provider string `form:"provider"`
	Status   string `form:"status" binding:"omitempty,oneof=INACTIVE ACTIVE ERROR"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

// ListRunsRequest filters the sync run ledger
type ListRunsRequest struct {
	From   string `form:"from" binding:"omitempty"`
	To     string `form:"to" binding:"omitempty"`
	Status string `form:"status" binding:"omitempty,oneof=SUCCESS FAILED"`
	Limit  int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// AnalyticsRequest sets the reporting window
type AnalyticsRequest struct {
	From string `form:"from" binding:"omitempty"`
	To   string `form:"to" binding:"omitempty"`
}

// ---------------------------------------------------------------------------
// Response DTOs
// ---------------------------------------------------------------------------

// SyncPolicyResponse represents the sync policy in responses
type SyncPolicyResponse struct {
	Enabled          bool     `json:"enabled"`
	FrequencySecs    int      `json:"frequency_secs"`
	Direction        string   `json:"direction"`
	ConflictStrategy string   `json:"conflict_strategy"`
	BatchSize        int      `json:"batch_size"`
	Entities         []string `json:"entities,omitempty"`
}

// WebhookConfigResponse represents the webhook configuration in responses
type WebhookConfigResponse struct {
	Enabled     bool     `json:"enabled"`
	Events      []string `json:"events,omitempty"`
	CallbackURL string   `json:"callback_url,omitempty"`
}

// RateLimitsResponse represents rate limit bounds in responses
type RateLimitsResponse struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

// SyncStatsResponse represents accumulated run statistics
type SyncStatsResponse struct {
	TotalRuns           int64 `json:"total_runs"`
	SuccessfulRuns      int64 `json:"successful_runs"`
	FailedRuns          int64 `json:"failed_runs"`
	LastDurationMs      int64 `json:"last_duration_ms"`
	ConsecutiveFailures int   `json:"consecutive_failures"`
}

// HealthStateResponse represents the cached health of an integration
type HealthStateResponse struct {
	Status      string     `json:"status"`
	LastCheckAt *time.Time `json:"last_check_at,omitempty"`
}

// IntegrationResponse represents an integration in API responses.
// Credentials are never included.
// @Description Integration details
type IntegrationResponse struct {
	ID         string                `json:"id"`
	Name       string                `json:"name"`
	Type       string                `json:"type"`
	Provider   string                `json:"provider"`
	Status     string                `json:"status"`
	Settings   map[string]string     `json:"settings,omitempty"`
	SyncPolicy SyncPolicyResponse    `json:"sync_policy"`
	Webhook    WebhookConfigResponse `json:"webhook"`
	RateLimits RateLimitsResponse    `json:"rate_limits"`
	Stats      SyncStatsResponse     `json:"stats"`
	Health     HealthStateResponse   `json:"health"`
	LastSyncAt *time.Time            `json:"last_sync_at,omitempty"`
	CreatedAt  time.Time             `json:"created_at"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// DirectionCountsResponse represents per-direction record counts
type DirectionCountsResponse struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}

// SyncRunResponse represents one entry of the sync run ledger
// @Description Sync run details
type SyncRunResponse struct {
	SyncID        string                  `json:"sync_id"`
	IntegrationID string                  `json:"integration_id"`
	Direction     string                  `json:"direction"`
	Entities      []string                `json:"entities,omitempty"`
	Status        string                  `json:"status"`
	Inbound       DirectionCountsResponse `json:"inbound"`
	Outbound      DirectionCountsResponse `json:"outbound"`
	Conflicts     int                     `json:"conflicts"`
	Duplicates    int                     `json:"duplicates"`
	DurationMs    int64                   `json:"duration_ms"`
	StartedAt     time.Time               `json:"started_at"`
	CompletedAt   time.Time               `json:"completed_at"`
}

// BatchSyncResultResponse represents one integration's outcome in a batch trigger
type BatchSyncResultResponse struct {
	IntegrationID string           `json:"integration_id"`
	Run           *SyncRunResponse `json:"run,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// CheckResultResponse represents one health sub-check outcome
type CheckResultResponse struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Issue   string `json:"issue,omitempty"`
}

// HealthReportResponse represents a full health check report
// @Description Integration health report
type HealthReportResponse struct {
	IntegrationID   string                `json:"integration_id"`
	Status          string                `json:"status"`
	Checks          []CheckResultResponse `json:"checks"`
	Recommendations []string              `json:"recommendations,omitempty"`
	CheckedAt       time.Time             `json:"checked_at"`
}

// ConflictResponse represents a queued manual conflict
// @Description Manual conflict details
type ConflictResponse struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	EntityType    string         `json:"entity_type"`
	RecordKey     string         `json:"record_key"`
	Local         map[string]any `json:"local"`
	Remote        map[string]any `json:"remote"`
	DetectedAt    time.Time      `json:"detected_at"`
	Resolved      bool           `json:"resolved"`
	Resolution    string         `json:"resolution,omitempty"`
	ResolvedAt    *time.Time     `json:"resolved_at,omitempty"`
}

// ---------------------------------------------------------------------------
// Mapping helpers
// ---------------------------------------------------------------------------

func toIntegrationResponse(in *integration.Integration) IntegrationResponse {
	return IntegrationResponse{
		ID:       in.ID.String(),
		Name:     in.Name,
		Type:     in.Type.String(),
		Provider: in.Provider,
		Status:   string(in.Status),
		Settings: in.Settings,
		SyncPolicy: SyncPolicyResponse{
			Enabled:          in.SyncPolicy.Enabled,
			FrequencySecs:    int(in.SyncPolicy.Frequency / time.Second),
			Direction:        string(in.SyncPolicy.Direction),
			ConflictStrategy: string(in.SyncPolicy.ConflictStrategy),
			BatchSize:        in.SyncPolicy.BatchSize,
			Entities:         in.SyncPolicy.Entities,
		},
		Webhook: WebhookConfigResponse{
			Enabled:     in.WebhookConfig.Enabled,
			Events:      in.WebhookConfig.Events,
			CallbackURL: in.WebhookConfig.CallbackURL,
		},
		RateLimits: RateLimitsResponse{
			PerMinute: in.RateLimits.PerMinute,
			PerHour:   in.RateLimits.PerHour,
		},
		Stats: SyncStatsResponse{
			TotalRuns:           in.SyncStats.TotalRuns,
			SuccessfulRuns:      in.SyncStats.SuccessfulRuns,
			FailedRuns:          in.SyncStats.FailedRuns,
			LastDurationMs:      in.SyncStats.LastDurationMs,
			ConsecutiveFailures: in.SyncStats.ConsecutiveFailures,
		},
		Health: HealthStateResponse{
			Status:      string(in.Health.Status),
			LastCheckAt: in.Health.LastCheckAt,
		},
		LastSyncAt: in.LastSyncAt,
		CreatedAt:  in.CreatedAt,
		UpdatedAt:  in.UpdatedAt,
	}
}

func toSyncRunResponse(run *integration.SyncRun) SyncRunResponse {
	return SyncRunResponse{
		SyncID:        run.SyncID.String(),
		IntegrationID: run.IntegrationID.String(),
		Direction:     string(run.Direction),
		Entities:      run.Entities,
		Status:        string(run.Status),
		Inbound:       DirectionCountsResponse(run.Inbound),
		Outbound:      DirectionCountsResponse(run.Outbound),
		Conflicts:     run.Conflicts,
		Duplicates:    run.Duplicates,
		DurationMs:    run.DurationMs,
		StartedAt:     run.StartedAt,
		CompletedAt:   run.CompletedAt,
	}
}

func toConflictResponse(c *integration.ManualConflict) ConflictResponse {
	return ConflictResponse{
		ID:            c.ID.String(),
		IntegrationID: c.IntegrationID.String(),
		EntityType:    c.EntityType,
		RecordKey:     c.RecordKey,
		Local:         c.Local,
		Remote:        c.Remote,
		DetectedAt:    c.DetectedAt,
		Resolved:      c.Resolved,
		Resolution:    c.Resolution,
		ResolvedAt:    c.ResolvedAt,
	}
}

func toHealthReportResponse(r *integration.HealthReport) HealthReportResponse {
	checks := make([]CheckResultResponse, 0, len(r.Checks))
	for _, c := range r.Checks {
		checks = append(checks, CheckResultResponse{
			Name:    string(c.Name),
			Healthy: c.Healthy,
			Issue:   c.Issue,
		})
	}
	return HealthReportResponse{
		IntegrationID:   r.IntegrationID.String(),
		Status:          string(r.Status),
		Checks:          checks,
		Recommendations: r.Recommendations,
		CheckedAt:       r.CheckedAt,
	}
}

func toSyncPolicy(req SyncPolicyRequest) integration.SyncPolicy {
	return integration.SyncPolicy{
		Enabled:          req.Enabled,
		Frequency:        time.Duration(req.FrequencySecs) * time.Second,
		Direction:        integration.Direction(req.Direction),
		ConflictStrategy: integration.ConflictStrategy(req.ConflictStrategy),
		BatchSize:        req.BatchSize,
		Entities:         req.Entities,
	}
}

func toWebhookConfig(req WebhookConfigRequest) integration.WebhookConfig {
	return integration.WebhookConfig{
		Enabled:     req.Enabled,
		Events:      req.Events,
		CallbackURL: req.CallbackURL,
	}
}

func toDataMapping(req DataMappingRequest) integration.DataMapping {
	m := integration.DataMapping{Fields: req.Fields}
	for _, tr := range req.Transforms {
		m.Transforms = append(m.Transforms, integration.Transform{
			Field: tr.Field,
			Kind:  integration.TransformKind(tr.Kind),
			Args:  tr.Args,
		})
	}
	for _, r := range req.Rules {
		m.Rules = append(m.Rules, integration.ValidationRule{
			Name:  r.Name,
			Field: r.Field,
			Kind:  integration.RuleKind(r.Kind),
			Args:  r.Args,
		})
	}
	return m
}

func toRateLimits(req RateLimitsRequest) integration.RateLimits {
	return integration.RateLimits{PerMinute: req.PerMinute, PerHour: req.PerHour}
}

// parseTimeParam parses an optional RFC 3339 query parameter
func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ---------------------------------------------------------------------------
// Registry endpoints
// ---------------------------------------------------------------------------

// Create godoc
// @Summary      Register a new integration
// @Description  Register a third-party integration in the INACTIVE state
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        request body CreateIntegrationRequest true "Integration registration request"
// @Success      201 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      500 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations [post]
func (h *IntegrationHandler) Create(c *gin.Context) {
	var req CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	input := syncapp.CreateIntegrationInput{
		Name:        req.Name,
		Type:        integration.Type(req.Type),
		Provider:    req.Provider,
		Credentials: integration.Credentials(req.Credentials),
		Settings:    req.Settings,
		SyncPolicy:  toSyncPolicy(req.SyncPolicy),
		RateLimits:  toRateLimits(req.RateLimits),
	}
	if req.Webhook != nil {
		input.Webhook = toWebhookConfig(*req.Webhook)
	}
	if req.Mapping != nil {
		input.Mapping = toDataMapping(*req.Mapping)
	}

	in, err := h.registry.Create(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toIntegrationResponse(in))
}

// List godoc
// @Summary      List integrations
// @Description  List registered integrations with optional filters
// @Tags         integrations
// @Produce      json
// @Param        type query string false "Filter by integration type"
// @Param        provider query string false "Filter by provider"
// @Param        status query string false "Filter by status" Enums(INACTIVE, ACTIVE, ERROR)
// @Param        page query int false "Page number" default(1)
// @Param        page_size query int false "Page size" default(20)
// @Success      200 {object} dto.Response{data=[]IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations [get]
func (h *IntegrationHandler) List(c *gin.Context) {
	var req ListIntegrationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}
	if req.Page == 0 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}

	filter := integration.IntegrationFilter{
		Page:     req.Page,
		PageSize: req.PageSize,
	}
	if req.Type != "" {
		t := integration.Type(req.Type)
		filter.Type = &t
	}
	if req.Provider != "" {
		filter.Provider = &req.Provider
	}
	if req.Status != "" {
		s := integration.Status(req.Status)
		filter.Status = &s
	}

	items, total, err := h.registry.List(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]IntegrationResponse, 0, len(items))
	for i := range items {
		resp = append(resp, toIntegrationResponse(&items[i]))
	}
	h.SuccessWithMeta(c, resp, total, req.Page, req.PageSize)
}

// GetByID godoc
// @Summary      Get an integration
// @Description  Get a single integration by its ID
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id} [get]
func (h *IntegrationHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.registry.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Update godoc
// @Summary      Update an integration
// @Description  Patch integration configuration; omitted fields are unchanged
// @Tags         integrations
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        request body UpdateIntegrationRequest true "Update request"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id} [put]
func (h *IntegrationHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	var req UpdateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	input := syncapp.UpdateIntegrationInput{
		Name:     req.Name,
		Settings: req.Settings,
	}
	if req.Credentials != nil {
		input.Credentials = integration.Credentials(req.Credentials)
	}
	if req.SyncPolicy != nil {
		policy := toSyncPolicy(*req.SyncPolicy)
		input.SyncPolicy = &policy
	}
	if req.Webhook != nil {
		webhook := toWebhookConfig(*req.Webhook)
		input.Webhook = &webhook
	}
	if req.Mapping != nil {
		mapping := toDataMapping(*req.Mapping)
		input.Mapping = &mapping
	}
	if req.RateLimits != nil {
		limits := toRateLimits(*req.RateLimits)
		input.RateLimits = &limits
	}

	in, err := h.registry.Update(c.Request.Context(), id, input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Delete godoc
// @Summary      Deregister an integration
// @Description  Remove an inactive integration and its stored credentials
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      204 "No Content"
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id} [delete]
func (h *IntegrationHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	if err := h.registry.Deregister(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ---------------------------------------------------------------------------
// Lifecycle endpoints
// ---------------------------------------------------------------------------

// Activate godoc
// @Summary      Activate an integration
// @Description  Probe the provider, open a session, register webhooks and mark the integration ACTIVE
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/activate [post]
func (h *IntegrationHandler) Activate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.connections.Activate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// Deactivate godoc
// @Summary      Deactivate an integration
// @Description  Cancel running syncs, tear down webhooks, close the session and mark the integration INACTIVE
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=IntegrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/deactivate [post]
func (h *IntegrationHandler) Deactivate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	in, err := h.connections.Deactivate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(in))
}

// TestConnection godoc
// @Summary      Test an integration's connection
// @Description  Probe the provider with the stored credentials without changing integration state
// @Tags         integrations
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} SuccessResponse
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      502 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/test [post]
func (h *IntegrationHandler) TestConnection(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	if err := h.connections.Test(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"connected": true})
}

// ---------------------------------------------------------------------------
// Sync endpoints
// ---------------------------------------------------------------------------

// Sync godoc
// @Summary      Trigger a sync run
// @Description  Run a synchronization for the integration and return the completed run
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        request body SyncRequest false "Sync options"
// @Success      200 {object} dto.Response{data=SyncRunResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      429 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/sync [post]
func (h *IntegrationHandler) Sync(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	var req SyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, err.Error())
			return
		}
	}

	run, err := h.syncs.RunSync(c.Request.Context(), id, syncapp.SyncInput{
		Direction: integration.Direction(req.Direction),
		Entities:  req.Entities,
	})
	if err != nil && run == nil {
		h.HandleError(c, err)
		return
	}

	// A cancelled run still completes with its partial counts recorded
	h.Success(c, toSyncRunResponse(run))
}

// SyncBatch godoc
// @Summary      Trigger sync runs for multiple integrations
// @Description  Run synchronizations concurrently and return per-integration outcomes
// @Tags         sync
// @Accept       json
// @Produce      json
// @Param        request body BatchSyncRequest true "Batch sync request"
// @Success      200 {object} dto.Response{data=[]BatchSyncResultResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/sync/batch [post]
func (h *IntegrationHandler) SyncBatch(c *gin.Context) {
	var req BatchSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	ids := make([]uuid.UUID, 0, len(req.IntegrationIDs))
	for _, raw := range req.IntegrationIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid integration ID format: "+raw)
			return
		}
		ids = append(ids, id)
	}

	results := h.syncs.RunBatch(c.Request.Context(), ids, syncapp.SyncInput{
		Direction: integration.Direction(req.Direction),
		Entities:  req.Entities,
	})

	resp := make([]BatchSyncResultResponse, 0, len(results))
	for _, res := range results {
		item := BatchSyncResultResponse{IntegrationID: res.IntegrationID.String()}
		if res.Run != nil {
			run := toSyncRunResponse(res.Run)
			item.Run = &run
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		resp = append(resp, item)
	}

	h.Success(c, resp)
}

// CancelSync godoc
// @Summary      Cancel a running sync
// @Description  Request cancellation of the integration's in-flight sync run
// @Tags         sync
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} SuccessResponse
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/sync/cancel [post]
func (h *IntegrationHandler) CancelSync(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	cancelled := h.syncs.Cancel(id)
	h.Success(c, gin.H{"cancelled": cancelled})
}

// ListRuns godoc
// @Summary      List sync runs
// @Description  List the integration's sync run ledger, newest first
// @Tags         sync
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        from query string false "Window start (RFC 3339)"
// @Param        to query string false "Window end (RFC 3339)"
// @Param        status query string false "Filter by run status" Enums(SUCCESS, FAILED)
// @Param        limit query int false "Maximum number of runs"
// @Success      200 {object} dto.Response{data=[]SyncRunResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/runs [get]
func (h *IntegrationHandler) ListRuns(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	var req ListRunsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	filter := integration.SyncRunFilter{Limit: req.Limit}
	if filter.From, err = parseTimeParam(req.From); err != nil {
		h.BadRequest(c, "Invalid 'from' timestamp, expected RFC 3339")
		return
	}
	if filter.To, err = parseTimeParam(req.To); err != nil {
		h.BadRequest(c, "Invalid 'to' timestamp, expected RFC 3339")
		return
	}
	if req.Status != "" {
		status := integration.RunStatus(req.Status)
		filter.Status = &status
	}

	runs, err := h.syncs.Runs(c.Request.Context(), id, filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]SyncRunResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, toSyncRunResponse(&runs[i]))
	}
	h.Success(c, resp)
}

// ---------------------------------------------------------------------------
// Conflict endpoints
// ---------------------------------------------------------------------------

// ListConflicts godoc
// @Summary      List open manual conflicts
// @Description  List unresolved conflicts queued for manual review
// @Tags         conflicts
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=[]ConflictResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/conflicts [get]
func (h *IntegrationHandler) ListConflicts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	conflicts, err := h.syncs.OpenConflicts(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	resp := make([]ConflictResponse, 0, len(conflicts))
	for i := range conflicts {
		resp = append(resp, toConflictResponse(&conflicts[i]))
	}
	h.Success(c, resp)
}

// ResolveConflict godoc
// @Summary      Resolve a manual conflict
// @Description  Settle a queued conflict by applying the chosen side
// @Tags         conflicts
// @Accept       json
// @Produce      json
// @Param        id path string true "Conflict ID"
// @Param        request body ResolveConflictRequest true "Resolution choice"
// @Success      200 {object} dto.Response{data=ConflictResponse}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      409 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /conflicts/{id}/resolve [post]
func (h *IntegrationHandler) ResolveConflict(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid conflict ID format")
		return
	}

	var req ResolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	conflict, err := h.syncs.ResolveConflict(c.Request.Context(), id, req.Resolution)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toConflictResponse(conflict))
}

// ---------------------------------------------------------------------------
// Health and analytics endpoints
// ---------------------------------------------------------------------------

// Health godoc
// @Summary      Check integration health
// @Description  Run all health sub-checks and return the aggregated report
// @Tags         health
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=HealthReportResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/health [get]
func (h *IntegrationHandler) Health(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	report, err := h.health.Check(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toHealthReportResponse(report))
}

// Analytics godoc
// @Summary      Get sync analytics
// @Description  Aggregate the sync run ledger into success rates, volumes and daily trends
// @Tags         analytics
// @Produce      json
// @Param        id path string true "Integration ID"
// @Param        from query string false "Window start (RFC 3339)"
// @Param        to query string false "Window end (RFC 3339)"
// @Success      200 {object} dto.Response{data=syncapp.AnalyticsReport}
// @Failure      400 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/analytics [get]
func (h *IntegrationHandler) Analytics(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	var req AnalyticsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var window syncapp.TimeRange
	from, err := parseTimeParam(req.From)
	if err != nil {
		h.BadRequest(c, "Invalid 'from' timestamp, expected RFC 3339")
		return
	}
	to, err := parseTimeParam(req.To)
	if err != nil {
		h.BadRequest(c, "Invalid 'to' timestamp, expected RFC 3339")
		return
	}
	if from != nil {
		window.From = *from
	}
	if to != nil {
		window.To = *to
	}

	report, err := h.analytics.Report(c.Request.Context(), id, window)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, report)
}
