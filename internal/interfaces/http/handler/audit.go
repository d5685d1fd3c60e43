package handler

import (
	"context"
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AuditReader reads the tenant's audit trail
type AuditReader interface {
	FindByTenant(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]*shared.AuditEntry, error)
}

// AuditHandler exposes the sync audit trail
type AuditHandler struct {
	BaseHandler
	reader AuditReader
}

// NewAuditHandler creates a new AuditHandler
func NewAuditHandler(reader AuditReader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// AuditEntryResponse represents an audit entry in API responses
type AuditEntryResponse struct {
	ID         string `json:"id"`
	SystemID   string `json:"system_id,omitempty"`
	Operation  string `json:"operation"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	OccurredAt string `json:"occurred_at"`
}

// List returns the tenant's audit entries, newest first. Supports a
// "since" RFC3339 timestamp and a "limit" query parameter.
func (h *AuditHandler) List(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.BadRequest(c, "Invalid 'since' timestamp, expected RFC3339")
			return
		}
		since = parsed
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			h.BadRequest(c, "Invalid 'limit' parameter")
			return
		}
		if parsed > 0 {
			limit = parsed
		}
	}
	if limit > 500 {
		limit = 500
	}

	tc := middleware.MustGetTenantContext(c)
	entries, err := h.reader.FindByTenant(c.Request.Context(), tc.TenantID, since, limit)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]AuditEntryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, AuditEntryResponse{
			ID:         entry.ID.String(),
			SystemID:   entry.SystemID,
			Operation:  entry.Operation,
			Outcome:    string(entry.Outcome),
			Error:      entry.Error,
			OccurredAt: entry.OccurredAt.Format(time.RFC3339),
		})
	}

	h.Success(c, responses)
}
