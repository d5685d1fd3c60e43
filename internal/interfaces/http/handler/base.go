package handler

import (
	"errors"
	"net/http"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/mapping"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/ratelimit"
	"github.com/crm/hub/internal/infrastructure/signature"
	"github.com/crm/hub/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
)

// RequestIDKey is the context key for request ID
const RequestIDKey = "request_id"

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// getRequestID extracts the request ID from the context
func getRequestID(c *gin.Context) string {
	if id := c.GetString(RequestIDKey); id != "" {
		return id
	}
	return c.GetHeader("X-Request-ID")
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

// Error sends an error response with the given status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, getRequestID(c)))
}

// ErrorWithCode sends an error response, deriving the status from the code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
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

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// ValidationError sends a 400 validation error response with details
func (h *BaseHandler) ValidationError(c *gin.Context, details []dto.ValidationDetail) {
	c.JSON(http.StatusBadRequest, dto.NewValidationErrorResponse(
		"Request validation failed",
		getRequestID(c),
		details,
	))
}

// HandleError converts hub and domain errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code := dto.NormalizeErrorCode(domainErr.Code)
		h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
		return
	}

	var limitErr *ratelimit.LimitError
	if errors.As(err, &limitErr) {
		h.Error(c, http.StatusTooManyRequests, dto.ErrCodeRateLimited, limitErr.Error())
		return
	}

	switch {
	// Signature verification failures are all rejected the same way so the
	// response does not reveal which stage failed
	case errors.Is(err, signature.ErrMissingSignature),
		errors.Is(err, signature.ErrMismatch),
		errors.Is(err, signature.ErrUnsupportedScheme),
		errors.Is(err, signature.ErrSecretUnavailable):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")

	case errors.Is(err, hub.ErrPermissionDenied):
		h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, "Permission denied")

	case errors.Is(err, shared.ErrMissingTenant):
		h.Error(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Tenant identification required")

	case errors.Is(err, integration.ErrSystemNotRegistered),
		errors.Is(err, mapping.ErrRuleNotFound):
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())

	case errors.Is(err, integration.ErrSystemAlreadyExists):
		h.Error(c, http.StatusConflict, dto.ErrCodeAlreadyExists, err.Error())

	case errors.Is(err, integration.ErrInvalidConfig),
		errors.Is(err, delivery.ErrInvalidSubscription),
		errors.Is(err, delivery.ErrInvalidEvent):
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidInput, err.Error())

	case errors.Is(err, integration.ErrDirectionNotSupported):
		h.Error(c, http.StatusUnprocessableEntity, dto.ErrCodeDirectionNotSupported, err.Error())

	case errors.Is(err, integration.ErrAuthenticationFailed),
		errors.Is(err, integration.ErrConnectionInvalid):
		h.Error(c, http.StatusBadGateway, dto.ErrCodeBusinessRule, err.Error())

	default:
		h.InternalError(c, "An unexpected error occurred")
	}
}
