package models

import (
	"encoding/json"
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/google/uuid"
)

// SubscriptionModel is the persistence model for webhook subscriptions.
type SubscriptionModel struct {
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID `gorm:"type:uuid;not null;index:idx_subscription_tenant,priority:1"`
	EndpointURL    string    `gorm:"type:varchar(2048);not null"`
	EventTypesJSON string    `gorm:"type:jsonb;column:event_types"`
	Secret         string    `gorm:"type:varchar(128);not null"`
	IsActive       bool      `gorm:"not null;default:true;index:idx_subscription_tenant,priority:2"`
	MaxAttempts    int       `gorm:"not null;default:5"`
	BackoffFactor  float64   `gorm:"not null;default:2.0"`
	BaseDelayMs    int64     `gorm:"not null;default:1000"`
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SubscriptionModel) TableName() string {
	return "webhook_subscriptions"
}

// ToDomain converts the persistence model to a domain Subscription.
func (m *SubscriptionModel) ToDomain() *delivery.Subscription {
	sub := &delivery.Subscription{
		ID:          m.ID,
		TenantID:    m.TenantID,
		EndpointURL: m.EndpointURL,
		EventTypes:  make([]string, 0),
		Secret:      m.Secret,
		IsActive:    m.IsActive,
		RetryPolicy: delivery.RetryPolicy{
			MaxAttempts:   m.MaxAttempts,
			BackoffFactor: m.BackoffFactor,
			BaseDelay:     time.Duration(m.BaseDelayMs) * time.Millisecond,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}

	if m.EventTypesJSON != "" {
		var eventTypes []string
		if err := json.Unmarshal([]byte(m.EventTypesJSON), &eventTypes); err == nil {
			sub.EventTypes = eventTypes
		}
	}

	return sub
}

// FromDomain populates the persistence model from a domain Subscription.
func (m *SubscriptionModel) FromDomain(sub *delivery.Subscription) {
	m.ID = sub.ID
	m.TenantID = sub.TenantID
	m.EndpointURL = sub.EndpointURL
	m.Secret = sub.Secret
	m.IsActive = sub.IsActive
	m.MaxAttempts = sub.RetryPolicy.MaxAttempts
	m.BackoffFactor = sub.RetryPolicy.BackoffFactor
	m.BaseDelayMs = sub.RetryPolicy.BaseDelay.Milliseconds()
	m.CreatedAt = sub.CreatedAt
	m.UpdatedAt = sub.UpdatedAt

	if len(sub.EventTypes) > 0 {
		if jsonBytes, err := json.Marshal(sub.EventTypes); err == nil {
			m.EventTypesJSON = string(jsonBytes)
		}
	} else {
		m.EventTypesJSON = "[]"
	}
}

// SubscriptionModelFromDomain creates a new persistence model from a domain Subscription.
func SubscriptionModelFromDomain(sub *delivery.Subscription) *SubscriptionModel {
	m := &SubscriptionModel{}
	m.FromDomain(sub)
	return m
}
