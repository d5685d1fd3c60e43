package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/shared"
	"go.uber.org/zap"
)

// inboundHandler processes one canonical sub-event type
type inboundHandler func(ctx context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error)

// TelephonyConnector integrates call-center platforms that push call events
// and accept click-to-dial requests. Authentication is a token exchange
// against the platform's auth endpoint; tokens are cached until shortly
// before expiry.
type TelephonyConnector struct {
	config   *integration.IntegrationConfig
	client   *restClient
	logger   *zap.Logger
	handlers map[string]inboundHandler

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewTelephonyConnector creates a connector for the given registration
func NewTelephonyConnector(config *integration.IntegrationConfig, logger *zap.Logger) (*TelephonyConnector, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &TelephonyConnector{
		config: config,
		client: newRESTClient(config.BaseURL, 0),
		logger: logger.Named("telephony").With(zap.String("system_id", config.SystemID)),
	}
	c.handlers = map[string]inboundHandler{
		"call.completed":       c.handleCallCompleted,
		"call.missed":          c.handleCallMissed,
		"call.recording_ready": c.handleRecordingReady,
	}
	return c, nil
}

// SystemID returns the system this connector was registered under
func (c *TelephonyConnector) SystemID() string {
	return c.config.SystemID
}

// Authenticate exchanges the configured API credentials for a session token
func (c *TelephonyConnector) Authenticate(ctx context.Context, tc shared.TenantContext) (*integration.AuthResult, error) {
	apiKey := c.config.Credentials["api_key"]
	apiSecret := c.config.Credentials["api_secret"]
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("%w: missing api_key or api_secret", integration.ErrAuthenticationFailed)
	}

	status, body, err := c.client.postJSON(ctx, "/v1/auth/token", map[string]any{
		"api_key":    apiKey,
		"api_secret": apiSecret,
	})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: auth endpoint returned status %d", integration.ErrAuthenticationFailed, status)
	}

	var resp struct {
		Token     string `json:"token"`
		ExpiresIn int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: malformed auth response", integration.ErrAuthenticationFailed)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("%w: auth response has no token", integration.ErrAuthenticationFailed)
	}

	expiresAt := time.Time{}
	if resp.ExpiresIn > 0 {
		expiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	c.mu.Lock()
	c.token = resp.Token
	c.tokenExpiry = expiresAt
	c.mu.Unlock()

	return &integration.AuthResult{
		Authenticated: true,
		Token:         resp.Token,
		ExpiresAt:     expiresAt,
	}, nil
}

// SyncInbound dispatches a canonical call event to its sub-event handler.
// Unknown event types are a business failure, not an error.
func (c *TelephonyConnector) SyncInbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
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

// SyncOutbound pushes a canonical record to the telephony platform, e.g. a
// click-to-dial request or a contact note
func (c *TelephonyConnector) SyncOutbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	token, err := c.ensureToken(ctx, tc)
	if err != nil {
		return nil, err
	}
	c.client.setHeader("Authorization", "Bearer "+token)

	status, body, err := c.client.postJSON(ctx, "/v1/calls", data)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: push rejected with status %d", integration.ErrAuthenticationFailed, status)
	case status >= 400:
		return integration.Fail("telephony API returned status %d", status), nil
	}

	var resp map[string]any
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			c.logger.Warn("unparseable push response", zap.Error(err))
		}
	}
	return integration.OK(resp), nil
}

// ValidateConnection checks the platform is reachable with valid credentials
func (c *TelephonyConnector) ValidateConnection(ctx context.Context, tc shared.TenantContext) (bool, error) {
	token, err := c.ensureToken(ctx, tc)
	if err != nil {
		return false, err
	}
	c.client.setHeader("Authorization", "Bearer "+token)

	status, _, err := c.client.getJSON(ctx, "/v1/ping")
	if err != nil {
		return false, err
	}
	return status == http.StatusOK, nil
}

// ensureToken returns a cached token, re-authenticating when it is missing
// or within a minute of expiry
func (c *TelephonyConnector) ensureToken(ctx context.Context, tc shared.TenantContext) (string, error) {
	c.mu.Lock()
	token := c.token
	expiry := c.tokenExpiry
	c.mu.Unlock()

	if token != "" && (expiry.IsZero() || time.Until(expiry) > time.Minute) {
		return token, nil
	}

	result, err := c.Authenticate(ctx, tc)
	if err != nil {
		return "", err
	}
	return result.Token, nil
}

// ---------------------------------------------------------------------------
// Sub-event handlers
// ---------------------------------------------------------------------------

func (c *TelephonyConnector) handleCallCompleted(_ context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	phone, _ := data["phone"].(string)
	if phone == "" {
		return integration.Fail("call.completed without caller phone"), nil
	}
	record := map[string]any{
		"kind":      "interaction",
		"channel":   "phone",
		"phone":     phone,
		"direction": data["direction"],
		"outcome":   "completed",
	}
	if d, ok := data["duration_seconds"]; ok {
		record["duration_seconds"] = d
	}
	if ref, ok := data["external_ref"]; ok {
		record["external_ref"] = ref
	}
	if agent, ok := data["agent_email"]; ok {
		record["agent_email"] = agent
	}
	return integration.OK(record), nil
}

func (c *TelephonyConnector) handleCallMissed(_ context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	phone, _ := data["phone"].(string)
	if phone == "" {
		return integration.Fail("call.missed without caller phone"), nil
	}
	record := map[string]any{
		"kind":      "interaction",
		"channel":   "phone",
		"phone":     phone,
		"direction": data["direction"],
		"outcome":   "missed",
	}
	if ref, ok := data["external_ref"]; ok {
		record["external_ref"] = ref
	}
	return integration.OK(record), nil
}

func (c *TelephonyConnector) handleRecordingReady(_ context.Context, data map[string]any, tc shared.TenantContext) (*integration.SyncResult, error) {
	ref, _ := data["external_ref"].(string)
	if ref == "" {
		return integration.Fail("call.recording_ready without call reference"), nil
	}
	record := map[string]any{
		"kind":          "interaction",
		"channel":       "phone",
		"outcome":       "recording_ready",
		"external_ref":  ref,
		"recording_url": data["recording_url"],
	}
	return integration.OK(record), nil
}

// Ensure TelephonyConnector implements Connector
var _ integration.Connector = (*TelephonyConnector)(nil)
