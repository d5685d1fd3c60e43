package delivery

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Subscription is a tenant-owned registration of an external endpoint that
// receives platform events. The secret is generated once at creation and is
// never re-derivable.
type Subscription struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	EndpointURL string
	EventTypes  []string
	Secret      string
	IsActive    bool
	RetryPolicy RetryPolicy
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSubscription creates an active subscription with a fresh secret
func NewSubscription(tenantID uuid.UUID, endpointURL string, eventTypes []string, policy RetryPolicy) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, fmt.Errorf("%w: tenant ID is required", ErrInvalidSubscription)
	}
	if err := validateEndpointURL(endpointURL); err != nil {
		return nil, err
	}
	if len(eventTypes) == 0 {
		return nil, fmt.Errorf("%w: at least one event type is required", ErrInvalidSubscription)
	}
	secret, err := generateSecret()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Subscription{
		ID:          uuid.New(),
		TenantID:    tenantID,
		EndpointURL: endpointURL,
		EventTypes:  eventTypes,
		Secret:      secret,
		IsActive:    true,
		RetryPolicy: policy.withDefaults(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Matches returns true if the subscription wants events of the given type
func (s *Subscription) Matches(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType || t == "*" {
			return true
		}
	}
	return false
}

// Deactivate marks the subscription inactive. Used both by tenants and by
// the dispatcher when deliveries keep failing beyond policy.
func (s *Subscription) Deactivate() {
	s.IsActive = false
	s.UpdatedAt = time.Now()
}

// Activate re-enables a paused subscription
func (s *Subscription) Activate() {
	s.IsActive = true
	s.UpdatedAt = time.Now()
}

// RotateSecret replaces the signing secret with a fresh one
func (s *Subscription) RotateSecret() error {
	secret, err := generateSecret()
	if err != nil {
		return err
	}
	s.Secret = secret
	s.UpdatedAt = time.Now()
	return nil
}

func validateEndpointURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: invalid endpoint URL %q", ErrInvalidSubscription, raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint URL must be http or https", ErrInvalidSubscription)
	}
	return nil
}

func generateSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.New("delivery: failed to generate subscription secret")
	}
	return "whsec_" + hex.EncodeToString(buf), nil
}
