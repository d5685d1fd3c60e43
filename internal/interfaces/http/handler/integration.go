package handler

import (
	"github.com/crm/hub/internal/application/hub"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// IntegrationHandler handles integration management endpoints
type IntegrationHandler struct {
	BaseHandler
	hub *hub.Hub
}

// NewIntegrationHandler creates a new IntegrationHandler
func NewIntegrationHandler(h *hub.Hub) *IntegrationHandler {
	return &IntegrationHandler{hub: h}
}

// RegisterIntegrationRequest represents a request to register an external system
type RegisterIntegrationRequest struct {
	SystemID           string            `json:"system_id" binding:"required,min=1,max=100"`
	Name               string            `json:"name" binding:"max=200"`
	Kind               string            `json:"kind" binding:"required,oneof=telephony crm"`
	BaseURL            string            `json:"base_url" binding:"omitempty,url"`
	Direction          string            `json:"direction" binding:"required,oneof=INBOUND OUTBOUND BIDIRECTIONAL"`
	SignatureScheme    string            `json:"signature_scheme" binding:"omitempty,oneof=HMAC_SHA256 TOKEN"`
	Credentials        map[string]string `json:"credentials"`
	RateLimitPerMinute int               `json:"rate_limit_per_minute" binding:"omitempty,gt=0"`
	RateLimitPerDay    int               `json:"rate_limit_per_day" binding:"omitempty,gt=0"`
}

// IntegrationResponse represents an integration in API responses.
// Credentials are write-only and never echoed back.
type IntegrationResponse struct {
	SystemID           string `json:"system_id"`
	Name               string `json:"name"`
	Kind               string `json:"kind"`
	BaseURL            string `json:"base_url,omitempty"`
	Direction          string `json:"direction"`
	SignatureScheme    string `json:"signature_scheme,omitempty"`
	RateLimitPerMinute int    `json:"rate_limit_per_minute,omitempty"`
	RateLimitPerDay    int    `json:"rate_limit_per_day,omitempty"`
}

func toIntegrationResponse(cfg *integration.IntegrationConfig) IntegrationResponse {
	return IntegrationResponse{
		SystemID:           cfg.SystemID,
		Name:               cfg.Name,
		Kind:               cfg.Kind,
		BaseURL:            cfg.BaseURL,
		Direction:          string(cfg.Direction),
		SignatureScheme:    string(cfg.SignatureScheme),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitPerDay:    cfg.RateLimitPerDay,
	}
}

// Register registers an external system and activates its connector
func (h *IntegrationHandler) Register(c *gin.Context) {
	var req RegisterIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	cfg := &integration.IntegrationConfig{
		SystemID:           req.SystemID,
		Name:               req.Name,
		Kind:               req.Kind,
		BaseURL:            req.BaseURL,
		Direction:          integration.SyncDirection(req.Direction),
		SignatureScheme:    integration.SignatureScheme(req.SignatureScheme),
		Credentials:        req.Credentials,
		RateLimitPerMinute: req.RateLimitPerMinute,
		RateLimitPerDay:    req.RateLimitPerDay,
	}

	tc := middleware.MustGetTenantContext(c)
	if err := h.hub.RegisterIntegration(c.Request.Context(), cfg, tc); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toIntegrationResponse(cfg))
}

// List returns all registered integrations
func (h *IntegrationHandler) List(c *gin.Context) {
	configs := h.hub.ListIntegrations()

	responses := make([]IntegrationResponse, 0, len(configs))
	for _, cfg := range configs {
		responses = append(responses, toIntegrationResponse(cfg))
	}

	h.Success(c, responses)
}

// Get returns a single integration by system ID
func (h *IntegrationHandler) Get(c *gin.Context) {
	cfg, err := h.hub.Integration(c.Param("system_id"))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toIntegrationResponse(cfg))
}

// Validate checks the connector's connection to the external system
func (h *IntegrationHandler) Validate(c *gin.Context) {
	tc := middleware.MustGetTenantContext(c)

	ok, err := h.hub.ValidateIntegration(c.Request.Context(), c.Param("system_id"), tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, gin.H{"system_id": c.Param("system_id"), "valid": ok})
}

// Deregister removes an integration and deactivates its connector
func (h *IntegrationHandler) Deregister(c *gin.Context) {
	tc := middleware.MustGetTenantContext(c)

	if err := h.hub.DeregisterIntegration(c.Request.Context(), c.Param("system_id"), tc); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}

// SyncRequest represents a manual sync request
type SyncRequest struct {
	Direction string         `json:"direction" binding:"required,oneof=INBOUND OUTBOUND"`
	Data      map[string]any `json:"data" binding:"required"`
}

// Sync pushes or pulls a single record through the integration's mapper
// and connector
func (h *IntegrationHandler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	tc := middleware.MustGetTenantContext(c)
	result, err := h.hub.SyncData(c.Request.Context(), c.Param("system_id"), integration.SyncDirection(req.Direction), req.Data, tc)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}
