package handler

import (
	"context"
	"strconv"
	"time"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionHandler handles webhook subscription endpoints
type SubscriptionHandler struct {
	BaseHandler
	hub *hub.Hub
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(h *hub.Hub) *SubscriptionHandler {
	return &SubscriptionHandler{hub: h}
}

// CreateSubscriptionRequest represents a request to create a subscription
type CreateSubscriptionRequest struct {
	EndpointURL string   `json:"endpoint_url" binding:"required,url"`
	EventTypes  []string `json:"event_types" binding:"required,min=1,dive,min=1"`
	// Retry policy overrides; zero values fall back to defaults
	MaxAttempts   int     `json:"max_attempts" binding:"omitempty,gt=0,lte=20"`
	BackoffFactor float64 `json:"backoff_factor" binding:"omitempty,gt=1"`
	BaseDelaySecs int     `json:"base_delay_seconds" binding:"omitempty,gt=0"`
}

// SubscriptionResponse represents a subscription in API responses. The
// signing secret is returned only on creation and rotation.
type SubscriptionResponse struct {
	ID          string   `json:"id"`
	EndpointURL string   `json:"endpoint_url"`
	EventTypes  []string `json:"event_types"`
	Secret      string   `json:"secret,omitempty"`
	IsActive    bool     `json:"is_active"`
	MaxAttempts int      `json:"max_attempts"`
	CreatedAt   string   `json:"created_at"`
}

func toSubscriptionResponse(sub *delivery.Subscription, includeSecret bool) SubscriptionResponse {
	resp := SubscriptionResponse{
		ID:          sub.ID.String(),
		EndpointURL: sub.EndpointURL,
		EventTypes:  sub.EventTypes,
		IsActive:    sub.IsActive,
		MaxAttempts: sub.RetryPolicy.MaxAttempts,
		CreatedAt:   sub.CreatedAt.Format(time.RFC3339),
	}
	if includeSecret {
		resp.Secret = sub.Secret
	}
	return resp
}

// DeliveryResponse represents a delivery attempt in API responses
type DeliveryResponse struct {
	ID             string `json:"id"`
	EventID        string `json:"event_id"`
	EventType      string `json:"event_type"`
	Status         string `json:"status"`
	RetryCount     int    `json:"retry_count"`
	MaxAttempts    int    `json:"max_attempts"`
	LastError      string `json:"last_error,omitempty"`
	LastStatusCode int    `json:"last_status_code,omitempty"`
	DueAt          string `json:"due_at"`
	DeliveredAt    string `json:"delivered_at,omitempty"`
}

func toDeliveryResponse(a *delivery.Attempt) DeliveryResponse {
	resp := DeliveryResponse{
		ID:             a.ID.String(),
		EventID:        a.EventID.String(),
		EventType:      a.EventType,
		Status:         string(a.Status),
		RetryCount:     a.RetryCount,
		MaxAttempts:    a.MaxAttempts,
		LastError:      a.LastError,
		LastStatusCode: a.LastStatusCode,
		DueAt:          a.DueAt.Format(time.RFC3339),
	}
	if a.DeliveredAt != nil {
		resp.DeliveredAt = a.DeliveredAt.Format(time.RFC3339)
	}
	return resp
}

// Create registers a webhook subscription. The response includes the
// signing secret; it is not retrievable afterwards.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	policy := delivery.RetryPolicy{
		MaxAttempts:   req.MaxAttempts,
		BackoffFactor: req.BackoffFactor,
		BaseDelay:     time.Duration(req.BaseDelaySecs) * time.Second,
	}

	tc := middleware.MustGetTenantContext(c)
	sub, err := h.hub.CreateSubscription(c.Request.Context(), req.EndpointURL, req.EventTypes, policy, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toSubscriptionResponse(sub, true))
}

// List returns the tenant's subscriptions
func (h *SubscriptionHandler) List(c *gin.Context) {
	tc := middleware.MustGetTenantContext(c)

	subs, err := h.hub.ListSubscriptions(c.Request.Context(), tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]SubscriptionResponse, 0, len(subs))
	for _, sub := range subs {
		responses = append(responses, toSubscriptionResponse(sub, false))
	}

	h.Success(c, responses)
}

// Get returns a single subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	sub, err := h.hub.GetSubscription(c.Request.Context(), id, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub, false))
}

// Pause deactivates a subscription without deleting it
func (h *SubscriptionHandler) Pause(c *gin.Context) {
	h.mutate(c, h.hub.PauseSubscription)
}

// Resume reactivates a paused subscription
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	h.mutate(c, h.hub.ResumeSubscription)
}

// RotateSecret replaces the subscription's signing secret. The new secret
// is in the response.
func (h *SubscriptionHandler) RotateSecret(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	sub, err := h.hub.RotateSubscriptionSecret(c.Request.Context(), id, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub, true))
}

// Delete removes a subscription
func (h *SubscriptionHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	if err := h.hub.DeleteSubscription(c.Request.Context(), id, tc); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// ListDeliveries returns delivery attempts for a subscription, newest first
func (h *SubscriptionHandler) ListDeliveries(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	status := delivery.AttemptStatus(c.Query("status"))
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := parsePositiveInt(raw); err == nil {
			limit = parsed
		}
	}

	tc := middleware.MustGetTenantContext(c)
	attempts, err := h.hub.ListDeliveries(c.Request.Context(), id, status, limit, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]DeliveryResponse, 0, len(attempts))
	for _, a := range attempts {
		responses = append(responses, toDeliveryResponse(a))
	}

	h.Success(c, responses)
}

// RedriveDelivery requeues a dead delivery attempt
func (h *SubscriptionHandler) RedriveDelivery(c *gin.Context) {
	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		h.BadRequest(c, "Invalid delivery attempt ID")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	attempt, err := h.hub.RedriveDelivery(c.Request.Context(), attemptID, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toDeliveryResponse(attempt))
}

func (h *SubscriptionHandler) mutate(c *gin.Context, op func(ctx context.Context, id uuid.UUID, tc shared.TenantContext) error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid subscription ID")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	if err := op(c.Request.Context(), id, tc); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

func parsePositiveInt(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		v = 0
	}
	return v, nil
}
