package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/infrastructure/signature"
	"golang.org/x/time/rate"
)

// Header names on outbound deliveries
const (
	HeaderEvent    = "X-Webhook-Event"
	HeaderDelivery = "X-Webhook-Delivery"
)

// maxDrainSize bounds how much of a receiver's response body is read before
// the connection is released for reuse
const maxDrainSize = 64 << 10

// SenderConfig holds HTTP sender settings
type SenderConfig struct {
	RequestTimeout time.Duration
	UserAgent      string
	// EndpointRate caps outbound requests per second per endpoint host
	EndpointRate  float64
	EndpointBurst int
}

// DefaultSenderConfig returns default configuration
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		RequestTimeout: 30 * time.Second,
		UserAgent:      "IntegrationHub-Webhooks/1.0",
		EndpointRate:   10,
		EndpointBurst:  20,
	}
}

// HTTPSender delivers webhook envelopes to subscription endpoints. A
// per-host token bucket keeps one slow or bursty receiver from absorbing
// the whole dispatch capacity.
type HTTPSender struct {
	httpClient *http.Client
	config     SenderConfig

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewHTTPSender creates a sender with the given configuration
func NewHTTPSender(config SenderConfig) *HTTPSender {
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = DefaultSenderConfig().RequestTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultSenderConfig().UserAgent
	}
	if config.EndpointRate <= 0 {
		config.EndpointRate = DefaultSenderConfig().EndpointRate
	}
	if config.EndpointBurst <= 0 {
		config.EndpointBurst = DefaultSenderConfig().EndpointBurst
	}
	return &HTTPSender{
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		config:     config,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Send delivers one attempt to the subscription endpoint and returns the
// remote status code. Transport failures return an error with status 0;
// HTTP error statuses do not.
func (s *HTTPSender) Send(ctx context.Context, attempt *delivery.Attempt, sub *delivery.Subscription) (int, error) {
	var event delivery.WebhookEvent
	if err := json.Unmarshal(attempt.Payload, &event); err != nil {
		return 0, fmt.Errorf("dispatch: attempt payload is not a valid event: %w", err)
	}

	dataBytes, err := json.Marshal(event.Data)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to marshal event data: %w", err)
	}
	sig, err := signature.SignHMACSHA256(dataBytes, sub.Secret)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to sign payload: %w", err)
	}

	envelope := delivery.Envelope{
		EventID:   event.EventID.String(),
		EventType: event.EventType,
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Data:      event.Data,
		Metadata: delivery.EnvelopeMetadata{
			RetryCount: attempt.RetryCount,
			Signature:  sig,
		},
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to marshal envelope: %w", err)
	}

	if err := s.waitForEndpoint(ctx, sub.EndpointURL); err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.EndpointURL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("dispatch: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.config.UserAgent)
	req.Header.Set(signature.HeaderName, sig)
	req.Header.Set(HeaderEvent, event.EventType)
	req.Header.Set(HeaderDelivery, attempt.ID.String())

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))

	return resp.StatusCode, nil
}

// waitForEndpoint blocks until the per-host pacing budget admits a request
func (s *HTTPSender) waitForEndpoint(ctx context.Context, endpointURL string) error {
	host := endpointURL
	if u, err := url.Parse(endpointURL); err == nil && u.Host != "" {
		host = u.Host
	}

	s.mu.Lock()
	limiter, ok := s.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.config.EndpointRate), s.config.EndpointBurst)
		s.limiters[host] = limiter
	}
	s.mu.Unlock()

	return limiter.Wait(ctx)
}

// IsSuccessStatus returns true for statuses that count as delivered
func IsSuccessStatus(status int) bool {
	switch status {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return true
	default:
		return false
	}
}
