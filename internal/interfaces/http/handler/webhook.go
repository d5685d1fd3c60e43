package handler

import (
	"io"
	"net/http"

	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/infrastructure/signature"
	"github.com/crm/hub/internal/interfaces/http/dto"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// WebhookHandler receives inbound webhooks from external systems
type WebhookHandler struct {
	BaseHandler
	hub *hub.Hub
}

// NewWebhookHandler creates a new WebhookHandler
func NewWebhookHandler(h *hub.Hub) *WebhookHandler {
	return &WebhookHandler{hub: h}
}

// Receive processes an inbound webhook. The raw body is passed through
// untouched: signature verification runs over the exact bytes the external
// system signed.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.Error(c, http.StatusRequestEntityTooLarge, dto.ErrCodeRequestTooLarge, "Failed to read request body")
		return
	}
	if len(payload) == 0 {
		h.BadRequest(c, "Empty webhook payload")
		return
	}

	tc := middleware.MustGetTenantContext(c)
	sigHeader := c.GetHeader(signature.HeaderName)

	result, err := h.hub.ProcessWebhook(c.Request.Context(), c.Param("system_id"), payload, sigHeader, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	// Business-level rejections come back as an unsuccessful result inside
	// a 200 acknowledgment
	h.Success(c, result)
}
