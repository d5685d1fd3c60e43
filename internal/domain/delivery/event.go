package delivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrInvalidEvent        = errors.New("delivery: invalid webhook event")
	ErrInvalidSubscription = errors.New("delivery: invalid subscription")
)

// WebhookEvent is a platform event eligible for outbound delivery, or an
// event received from an external system. Immutable once created; retries
// create delivery attempts, never new events.
type WebhookEvent struct {
	EventID      uuid.UUID      `json:"event_id"`
	EventType    string         `json:"event_type"`
	Timestamp    time.Time      `json:"timestamp"`
	SourceSystem string         `json:"source_system,omitempty"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	Data         map[string]any `json:"data"`
}

// NewWebhookEvent creates an event timestamped now
func NewWebhookEvent(eventType, sourceSystem string, tenantID uuid.UUID, data map[string]any) *WebhookEvent {
	return &WebhookEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		Timestamp:    time.Now().UTC(),
		SourceSystem: sourceSystem,
		TenantID:     tenantID,
		Data:         data,
	}
}

// Validate checks the event is publishable
func (e *WebhookEvent) Validate() error {
	if e.EventID == uuid.Nil {
		return errors.New("delivery: event has no ID")
	}
	if e.EventType == "" {
		return errors.New("delivery: event has no type")
	}
	if e.TenantID == uuid.Nil {
		return errors.New("delivery: event has no tenant")
	}
	return nil
}

// Envelope is the exact outbound delivery body
type Envelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	Timestamp string           `json:"timestamp"`
	Data      map[string]any   `json:"data"`
	Metadata  EnvelopeMetadata `json:"metadata"`
}

// EnvelopeMetadata carries the retry count and payload signature
type EnvelopeMetadata struct {
	RetryCount int    `json:"retry_count"`
	Signature  string `json:"signature"`
}
