package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	syncapp "github.com/synchub/backend/internal/application/integration"
)

// WebhookHandler receives provider webhook deliveries. The endpoint is
// public; authenticity comes from per-integration signature verification.
type WebhookHandler struct {
	BaseHandler
	webhooks *syncapp.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(webhooks *syncapp.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhooks: webhooks}
}

// WebhookAckResponse represents the acknowledgement of a webhook delivery
// @Description Webhook delivery acknowledgement
type WebhookAckResponse struct {
	Accepted      bool   `json:"accepted"`
	Duplicate     bool   `json:"duplicate"`
	TriggeredSync bool   `json:"triggered_sync"`
	EventID       string `json:"event_id,omitempty"`
	EventType     string `json:"event_type,omitempty"`
}

// WebhookRegistrationResponse represents the stored webhook registration
// @Description Webhook registration details
type WebhookRegistrationResponse struct {
	ID             string    `json:"id"`
	IntegrationID  string    `json:"integration_id"`
	URL            string    `json:"url"`
	Events         []string  `json:"events,omitempty"`
	RegistrationID string    `json:"registration_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Receive godoc
// @Summary      Receive a provider webhook
// @Description  Verify, deduplicate and process a webhook delivery; remote change events trigger an inbound sync
// @Tags         webhooks
// @Accept       json
// @Produce      json
// @Param        integration_id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=WebhookAckResponse}
// @Failure      401 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Failure      422 {object} dto.Response{error=dto.ErrorInfo}
// @Router       /webhooks/{integration_id} [post]
func (h *WebhookHandler) Receive(c *gin.Context) {
	integrationID, err := uuid.Parse(c.Param("integration_id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.BadRequest(c, "Failed to read request body")
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[name] = values[0]
		}
	}

	result, err := h.webhooks.Handle(c.Request.Context(), integrationID, payload, headers)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, WebhookAckResponse{
		Accepted:      result.Accepted,
		Duplicate:     result.Duplicate,
		TriggeredSync: result.TriggeredSync,
		EventID:       result.EventID,
		EventType:     result.EventType,
	})
}

// GetRegistration godoc
// @Summary      Get the webhook registration
// @Description  Return the stored webhook registration for an integration
// @Tags         webhooks
// @Produce      json
// @Param        id path string true "Integration ID"
// @Success      200 {object} dto.Response{data=WebhookRegistrationResponse}
// @Failure      404 {object} dto.Response{error=dto.ErrorInfo}
// @Security     BearerAuth
// @Router       /integrations/{id}/webhook [get]
func (h *WebhookHandler) GetRegistration(c *gin.Context) {
	integrationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid integration ID format")
		return
	}

	reg, err := h.webhooks.Registration(c.Request.Context(), integrationID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// The signing secret stays server-side
	h.Success(c, WebhookRegistrationResponse{
		ID:             reg.ID.String(),
		IntegrationID:  reg.IntegrationID.String(),
		URL:            reg.URL,
		Events:         reg.Events,
		RegistrationID: reg.RegistrationID,
		CreatedAt:      reg.CreatedAt,
	})
}
