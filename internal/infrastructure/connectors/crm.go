package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/shared"
	"go.uber.org/zap"
)

// CRMConnector integrates external CRM platforms that exchange contact
// records. Authentication is a static API key sent on every request.
type CRMConnector struct {
	config   *integration.IntegrationConfig
	client   *restClient
	logger   *zap.Logger
	handlers map[string]inboundHandler
}

// NewCRMConnector creates a connector for the given registration
func NewCRMConnector(config *integration.IntegrationConfig, logger *zap.Logger) (*CRMConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &CRMConnector{
		config: config,
		client: newRESTClient(config.BaseURL, 0),
		logger: logger.Named("crm").With(zap.String("system_id", config.SystemID)),
	}
	if apiKey := config.Credentials["api_key"]; apiKey != "" {
		c.client.setHeader("X-API-Key", apiKey)
	}
	c.handlers = map[string]inboundHandler{
		"contact.created": c.handleContactUpsert,
		"contact.updated": c.handleContactUpsert,
		"contact.deleted": c.handleContactDeleted,
	}
	return c, nil
}

// SystemID returns the system this connector was registered under
func (c *CRMConnector) SystemID() string {
	return c.config.SystemID
}

// Authenticate verifies the configured API key against the platform
func (c *CRMConnector) Authenticate(ctx context.Context, tc shared.TenantContext) (*integration.AuthResult, error) {
	if c.config.Credentials["api_key"] == "" {
		return nil, fmt.Errorf("%w: missing api_key", integration.ErrAuthenticationFailed)
	}

	status, _, err := c.client.getJSON(ctx, "/v1/me")
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: key check returned status %d", integration.ErrAuthenticationFailed, status)
	}
	// API keys are non-expiring; there is no session token
	return &integration.AuthResult{Authenticated: true}, nil
}

// SyncInbound dispatches a canonical contact event to its sub-event handler
func (c *CRMConnector) SyncInbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	eventType, _ := data["event_type"].(string)
	if eventType == "" {
		return integration.Fail("missing event type"), nil
	}
	handler, ok := c.handlers[eventType]
	if !ok {
		return integration.Fail("unknown event type: %s", eventType), nil
	}
	return handler(ctx, data, tc)
}

// SyncOutbound pushes a canonical contact record to the CRM
func (c *CRMConnector) SyncOutbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	status, body, err := c.client.postJSON(ctx, "/v1/contacts", data)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: push rejected with status %d", integration.ErrAuthenticationFailed, status)
	case status >= 400:
		return integration.Fail("CRM API returned status %d", status), nil
	}

	var resp map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			c.logger.Warn("unparseable push response", zap.Error(err))
		}
	}
	return integration.OK(resp), nil
}

// ValidateConnection checks the CRM is reachable with a valid key
func (c *CRMConnector) ValidateConnection(ctx context.Context, tc shared.TenantContext) (bool, error) {
	status, _, err := c.client.getJSON(ctx, "/v1/ping")
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// ---------------------------------------------------------------------------
// Sub-event handlers
// ---------------------------------------------------------------------------

func (c *CRMConnector) handleContactUpsert(_ context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	phone, _ := data["phone"].(string)
	if phone == "" {
		return integration.Fail("contact event without phone"), nil
	}
	record := map[string]any{
		"kind":  "contact",
		"phone": phone,
	}
	for _, field := range []string{"first_name", "last_name", "email", "external_ref"} {
		if v, ok := data[field]; ok {
			record[field] = v
		}
	}
	return integration.OK(record), nil
}

func (c *CRMConnector) handleContactDeleted(_ context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	ref, _ := data["external_ref"].(string)
	if ref == "" {
		return integration.Fail("contact.deleted without contact reference"), nil
	}
	return integration.OK(map[string]any{
		"kind":         "contact",
		"deleted":      true,
		"external_ref": ref,
	}), nil
}

// Ensure CRMConnector implements Connector
var _ integration.Connector = (*CRMConnector)(nil)
