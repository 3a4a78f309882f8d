package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/synchub/backend/internal/domain/integration"
	"github.com/synchub/backend/internal/domain/shared"
	"github.com/synchub/backend/internal/interfaces/http/dto"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "X-Request-ID"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	if id := c.GetHeader(RequestIDKey); id != "" {
		return id
	}
	return ""
}

// sentinelErrorCodes maps domain sentinel errors to API error codes.
// Order matters: the first match via errors.Is wins.
var sentinelErrorCodes = []struct {
	target error
	code   string
}{
	{integration.ErrIntegrationNotFound, dto.ErrCodeNotFound},
	{integration.ErrConflictNotFound, dto.ErrCodeNotFound},
	{integration.ErrCredentialsNotFound, dto.ErrCodeNotFound},
	{integration.ErrWebhookNotRegistered, dto.ErrCodeNotFound},
	{integration.ErrIntegrationNameEmpty, dto.ErrCodeInvalidInput},
	{integration.ErrUnsupportedIntegration, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidDirection, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidConflictPolicy, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidRateLimits, dto.ErrCodeInvalidInput},
	{integration.ErrInvalidResolution, dto.ErrCodeInvalidInput},
	{integration.ErrIntegrationActive, dto.ErrCodeInvalidState},
	{integration.ErrIntegrationNotActive, dto.ErrCodeInvalidState},
	{integration.ErrWebhookDisabled, dto.ErrCodeInvalidState},
	{integration.ErrConflictAlreadyResolved, dto.ErrCodeConflictResolved},
	{integration.ErrSyncCancelled, dto.ErrCodeSyncCancelled},
	{integration.ErrRateLimitExceeded, dto.ErrCodeRateLimited},
	{integration.ErrInvalidSignature, dto.ErrCodeInvalidSignature},
	{integration.ErrConnectionFailed, dto.ErrCodeProviderUnavailable},
	{integration.ErrProviderNotRegistered, dto.ErrCodeProviderUnavailable},
}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	statusCode := dto.GetHTTPStatus(code)
	requestID := getRequestID(c)
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, requestID))
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// Unauthorized sends a 401 unauthorized response
func (h *BaseHandler) Unauthorized(c *gin.Context, message string) {
	h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, message)
}

// Forbidden sends a 403 forbidden response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// Conflict sends a 409 conflict response
func (h *BaseHandler) Conflict(c *gin.Context, message string) {
	h.Error(c, http.StatusConflict, dto.ErrCodeConflict, message)
}

// UnprocessableEntity sends a 422 unprocessable entity response
func (h *BaseHandler) UnprocessableEntity(c *gin.Context, code, message string) {
	h.Error(c, http.StatusUnprocessableEntity, code, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// TooManyRequests sends a 429 too many requests response
func (h *BaseHandler) TooManyRequests(c *gin.Context, message string) {
	h.Error(c, http.StatusTooManyRequests, dto.ErrCodeRateLimited, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	requestID := getRequestID(c)
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		requestID,
		details,
	))
}

// HandleError converts domain errors to HTTP responses, handling both
// sentinel errors and coded DomainError values via errors wrapping
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	requestID := getRequestID(c)

	for _, entry := range sentinelErrorCodes {
		if errors.Is(err, entry.target) {
			statusCode := dto.GetHTTPStatus(entry.code)
			c.JSON(statusCode, dto.NewErrorResponseWithRequestID(entry.code, entry.target.Error(), requestID))
			return
		}
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		statusCode := dto.GetHTTPStatus(code)
		c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, domainErr.Message, requestID))
		return
	}

	// Unknown error type - return as internal error
	c.JSON(http.StatusInternalServerError, dto.NewErrorResponseWithRequestID(
		dto.ErrCodeInternal,
		"An unexpected error occurred",
		requestID,
	))
}
