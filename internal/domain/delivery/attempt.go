package delivery

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AttemptStatus represents the status of a scheduled delivery
type AttemptStatus string

const (
	AttemptStatusPending    AttemptStatus = "PENDING"
	AttemptStatusProcessing AttemptStatus = "PROCESSING"
	AttemptStatusDelivered  AttemptStatus = "DELIVERED"
	AttemptStatusFailed     AttemptStatus = "FAILED"
	AttemptStatusDead       AttemptStatus = "DEAD"
)

// Attempt is a scheduled delivery of one event to one subscription. It moves
// pending -> processing -> delivered, or through failed back to pending-like
// rescheduling via DueAt until the policy is exhausted and it goes dead.
// Exactly one Attempt row exists per (event, subscription) pair; retries
// advance RetryCount on the same row.
type Attempt struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	EventID        uuid.UUID
	SubscriptionID uuid.UUID
	EventType      string
	Payload        []byte
	Status         AttemptStatus
	RetryCount     int
	MaxAttempts    int
	LastError      string
	LastStatusCode int
	DueAt          time.Time
	DeliveredAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewAttempt schedules the first delivery of an event to a subscription,
// due immediately.
func NewAttempt(event *WebhookEvent, sub *Subscription, payload []byte) *Attempt {
	now := time.Now()
	return &Attempt{
		ID:             uuid.New(),
		TenantID:       event.TenantID,
		EventID:        event.EventID,
		SubscriptionID: sub.ID,
		EventType:      event.EventType,
		Payload:        payload,
		Status:         AttemptStatusPending,
		RetryCount:     0,
		MaxAttempts:    sub.RetryPolicy.withDefaults().MaxAttempts,
		DueAt:          now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// MarkProcessing claims the attempt for an in-flight delivery
func (a *Attempt) MarkProcessing() error {
	if a.Status != AttemptStatusPending && a.Status != AttemptStatusFailed {
		return errors.New("delivery: can only process pending or failed attempts")
	}
	a.Status = AttemptStatusProcessing
	a.UpdatedAt = time.Now()
	return nil
}

// MarkDelivered records a successful delivery
func (a *Attempt) MarkDelivered() {
	now := time.Now()
	a.Status = AttemptStatusDelivered
	a.DeliveredAt = &now
	a.UpdatedAt = now
}

// MarkFailed records a failed delivery. Retryable failures below the policy
// ceiling are rescheduled with exponential backoff; everything else goes
// dead. Returns true if a retry was scheduled.
func (a *Attempt) MarkFailed(class FailureClass, policy RetryPolicy, errMsg string, statusCode int) bool {
	a.RetryCount++
	a.LastError = errMsg
	a.LastStatusCode = statusCode
	a.UpdatedAt = time.Now()

	if class == FailureRetryable && a.RetryCount < a.MaxAttempts {
		a.Status = AttemptStatusFailed
		a.DueAt = time.Now().Add(policy.CalculateDelay(a.RetryCount - 1))
		return true
	}
	a.Status = AttemptStatusDead
	return false
}

// ResetForRedrive reschedules a dead attempt for immediate delivery.
// Used by the management API, never by the dispatcher itself.
func (a *Attempt) ResetForRedrive() error {
	if a.Status != AttemptStatusDead {
		return errors.New("delivery: can only redrive dead attempts")
	}
	a.Status = AttemptStatusPending
	a.RetryCount = 0
	a.LastError = ""
	a.LastStatusCode = 0
	a.DueAt = time.Now()
	a.UpdatedAt = time.Now()
	return nil
}

// IsDead returns true if the attempt exhausted its retries
func (a *Attempt) IsDead() bool {
	return a.Status == AttemptStatusDead
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// AttemptRepository persists scheduled delivery attempts
type AttemptRepository interface {
	// Save persists one or more attempts
	Save(ctx context.Context, attempts ...*Attempt) error
	// FindDue retrieves pending/failed attempts whose DueAt has passed
	FindDue(ctx context.Context, before time.Time, limit int) ([]*Attempt, error)
	// FindByID retrieves a single attempt
	FindByID(ctx context.Context, id uuid.UUID) (*Attempt, error)
	// FindByPair retrieves the attempt for an event/subscription pair
	FindByPair(ctx context.Context, eventID, subscriptionID uuid.UUID) (*Attempt, error)
	// FindBySubscription lists attempts for a subscription, optionally
	// filtered by status, newest first
	FindBySubscription(ctx context.Context, subscriptionID uuid.UUID, status AttemptStatus, limit int) ([]*Attempt, error)
	// MarkProcessing atomically claims due attempts and returns them
	MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*Attempt, error)
	// ReclaimStale requeues attempts stuck in PROCESSING since before the
	// cutoff and returns the number requeued
	ReclaimStale(ctx context.Context, stuckSince time.Time) (int64, error)
	// Update updates an existing attempt
	Update(ctx context.Context, attempt *Attempt) error
	// CountFailuresSince counts dead attempts for a subscription after a cutoff
	CountFailuresSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (int64, error)
	// DeleteOlderThan removes delivered/dead attempts older than the cutoff
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// SubscriptionRepository persists tenant webhook subscriptions
type SubscriptionRepository interface {
	Save(ctx context.Context, sub *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	// FindActiveByEvent lists active subscriptions of a tenant matching an
	// event type
	FindActiveByEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*Subscription, error)
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id uuid.UUID) error
}
