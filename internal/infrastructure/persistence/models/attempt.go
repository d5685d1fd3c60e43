package models

import (
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/google/uuid"
)

// DeliveryAttemptModel is the persistence model for scheduled deliveries.
// The unique index on (event_id, subscription_id) enforces one row per pair;
// retries advance retry_count on the same row.
type DeliveryAttemptModel struct {
	ID             uuid.UUID              `gorm:"type:uuid;primary_key"`
	TenantID       uuid.UUID              `gorm:"type:uuid;not null;index:idx_attempt_tenant,priority:1"`
	EventID        uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_attempt_pair,priority:1"`
	SubscriptionID uuid.UUID              `gorm:"type:uuid;not null;uniqueIndex:idx_attempt_pair,priority:2;index:idx_attempt_subscription,priority:1"`
	EventType      string                 `gorm:"type:varchar(100);not null"`
	Payload        []byte                 `gorm:"type:bytea;not null"`
	Status         delivery.AttemptStatus `gorm:"type:varchar(20);not null;default:'PENDING';index:idx_attempt_due,priority:1"`
	ClaimedBy      string                 `gorm:"type:varchar(64);not null;default:''"`
	RetryCount     int                    `gorm:"not null;default:0"`
	MaxAttempts    int                    `gorm:"not null;default:5"`
	LastError      string                 `gorm:"type:text"`
	LastStatusCode int                    `gorm:"not null;default:0"`
	DueAt          time.Time              `gorm:"not null;index:idx_attempt_due,priority:2"`
	DeliveredAt    *time.Time
	CreatedAt      time.Time `gorm:"not null"`
	UpdatedAt      time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// ToDomain converts the persistence model to a domain Attempt.
func (m *DeliveryAttemptModel) ToDomain() *delivery.Attempt {
	return &delivery.Attempt{
		ID:             m.ID,
		TenantID:       m.TenantID,
		EventID:        m.EventID,
		SubscriptionID: m.SubscriptionID,
		EventType:      m.EventType,
		Payload:        m.Payload,
		Status:         m.Status,
		RetryCount:     m.RetryCount,
		MaxAttempts:    m.MaxAttempts,
		LastError:      m.LastError,
		LastStatusCode: m.LastStatusCode,
		DueAt:          m.DueAt,
		DeliveredAt:    m.DeliveredAt,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain Attempt.
func (m *DeliveryAttemptModel) FromDomain(a *delivery.Attempt) {
	m.ID = a.ID
	m.TenantID = a.TenantID
	m.EventID = a.EventID
	m.SubscriptionID = a.SubscriptionID
	m.EventType = a.EventType
	m.Payload = a.Payload
	m.Status = a.Status
	m.RetryCount = a.RetryCount
	m.MaxAttempts = a.MaxAttempts
	m.LastError = a.LastError
	m.LastStatusCode = a.LastStatusCode
	m.DueAt = a.DueAt
	m.DeliveredAt = a.DeliveredAt
	m.CreatedAt = a.CreatedAt
	m.UpdatedAt = a.UpdatedAt
}

// DeliveryAttemptModelFromDomain creates a new persistence model from a domain Attempt.
func DeliveryAttemptModelFromDomain(a *delivery.Attempt) *DeliveryAttemptModel {
	m := &DeliveryAttemptModel{}
	m.FromDomain(a)
	return m
}
