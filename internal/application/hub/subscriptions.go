package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ---------------------------------------------------------------------------
// Subscription management
// ---------------------------------------------------------------------------

// CreateSubscription registers a tenant endpoint for event delivery. The
// returned subscription carries the freshly generated secret; it is shown
// once and never re-derivable.
func (h *Hub) CreateSubscription(ctx context.Context, endpointURL string, eventTypes []string, policy delivery.RetryPolicy, tc shared.TenantContext) (*delivery.Subscription, error) {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return nil, err
	}
	sub, err := delivery.NewSubscription(tc.TenantID, endpointURL, eventTypes, policy)
	if err != nil {
		return nil, err
	}
	if err := h.subs.Save(ctx, sub); err != nil {
		return nil, fmt.Errorf("hub: failed to save subscription: %w", err)
	}
	h.logger.Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("endpoint_url", sub.EndpointURL),
		zap.Strings("event_types", sub.EventTypes),
	)
	return sub, nil
}

// ListSubscriptions returns the tenant's subscriptions
func (h *Hub) ListSubscriptions(ctx context.Context, tc shared.TenantContext) ([]*delivery.Subscription, error) {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return nil, err
	}
	return h.subs.FindByTenant(ctx, tc.TenantID)
}

// GetSubscription returns one subscription owned by the tenant
func (h *Hub) GetSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext) (*delivery.Subscription, error) {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return nil, err
	}
	return h.ownedSubscription(ctx, id, tc)
}

// PauseSubscription deactivates a subscription without deleting it
func (h *Hub) PauseSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext) error {
	return h.updateSubscription(ctx, id, tc, func(sub *delivery.Subscription) error {
		sub.Deactivate()
		return nil
	})
}

// ResumeSubscription re-enables a paused or auto-deactivated subscription
func (h *Hub) ResumeSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext) error {
	return h.updateSubscription(ctx, id, tc, func(sub *delivery.Subscription) error {
		sub.Activate()
		return nil
	})
}

// RotateSubscriptionSecret replaces the signing secret and returns the
// updated subscription carrying the new one
func (h *Hub) RotateSubscriptionSecret(ctx context.Context, id uuid.UUID, tc shared.TenantContext) (*delivery.Subscription, error) {
	var rotated *delivery.Subscription
	err := h.updateSubscription(ctx, id, tc, func(sub *delivery.Subscription) error {
		if err := sub.RotateSecret(); err != nil {
			return err
		}
		rotated = sub
		return nil
	})
	return rotated, err
}

// DeleteSubscription removes a subscription
func (h *Hub) DeleteSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext) error {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return err
	}
	if _, err := h.ownedSubscription(ctx, id, tc); err != nil {
		return err
	}
	return h.subs.Delete(ctx, id)
}

func (h *Hub) updateSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext, mutate func(*delivery.Subscription) error) error {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return err
	}
	sub, err := h.ownedSubscription(ctx, id, tc)
	if err != nil {
		return err
	}
	if err := mutate(sub); err != nil {
		return err
	}
	return h.subs.Update(ctx, sub)
}

// ownedSubscription loads a subscription and checks tenant ownership.
// Foreign subscriptions read as not found, never as forbidden.
func (h *Hub) ownedSubscription(ctx context.Context, id uuid.UUID, tc shared.TenantContext) (*delivery.Subscription, error) {
	sub, err := h.subs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != tc.TenantID {
		return nil, shared.ErrNotFound
	}
	return sub, nil
}

// ---------------------------------------------------------------------------
// Event fan-out
// ---------------------------------------------------------------------------

// PublishEvent schedules delivery of an event to every matching active
// subscription of the event's tenant. Each (event, subscription) pair gets
// exactly one attempt row; pairs that already have one are skipped.
// Returns the number of deliveries scheduled.
func (h *Hub) PublishEvent(ctx context.Context, event *delivery.WebhookEvent) (int, error) {
	if err := event.Validate(); err != nil {
		return 0, err
	}

	matching, err := h.subs.FindActiveByEvent(ctx, event.TenantID, event.EventType)
	if err != nil {
		return 0, fmt.Errorf("hub: failed to find subscriptions: %w", err)
	}
	if len(matching) == 0 {
		return 0, nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("hub: failed to serialize event: %w", err)
	}

	attempts := make([]*delivery.Attempt, 0, len(matching))
	for _, sub := range matching {
		if h.idempotency != nil {
			key := shared.DeliveryKey(event.EventID.String(), sub.ID.String())
			processed, err := h.idempotency.IsProcessed(ctx, key)
			if err != nil {
				h.logger.Warn("idempotency check failed during publish", zap.Error(err))
			}
			if processed {
				continue
			}
		}
		if _, err := h.attempts.FindByPair(ctx, event.EventID, sub.ID); err == nil {
			continue
		} else if !errors.Is(err, shared.ErrNotFound) {
			return 0, fmt.Errorf("hub: failed to check existing attempt: %w", err)
		}
		attempts = append(attempts, delivery.NewAttempt(event, sub, payload))
	}
	if len(attempts) == 0 {
		return 0, nil
	}

	if err := h.attempts.Save(ctx, attempts...); err != nil {
		return 0, fmt.Errorf("hub: failed to schedule deliveries: %w", err)
	}
	h.logger.Debug("event fanned out",
		zap.String("event_id", event.EventID.String()),
		zap.String("event_type", event.EventType),
		zap.Int("deliveries", len(attempts)),
	)
	return len(attempts), nil
}

// ---------------------------------------------------------------------------
// Delivery management
// ---------------------------------------------------------------------------

// ListDeliveries returns recent delivery attempts for a subscription,
// optionally filtered by status
func (h *Hub) ListDeliveries(ctx context.Context, subscriptionID uuid.UUID, status delivery.AttemptStatus, limit int, tc shared.TenantContext) ([]*delivery.Attempt, error) {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return nil, err
	}
	if _, err := h.ownedSubscription(ctx, subscriptionID, tc); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return h.attempts.FindBySubscription(ctx, subscriptionID, status, limit)
}

// RedriveDelivery reschedules a dead attempt for immediate delivery
func (h *Hub) RedriveDelivery(ctx context.Context, attemptID uuid.UUID, tc shared.TenantContext) (*delivery.Attempt, error) {
	tc, err := h.authorize(ctx, tc, PermManageSubscriptions)
	if err != nil {
		return nil, err
	}
	attempt, err := h.attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.TenantID != tc.TenantID {
		return nil, shared.ErrNotFound
	}
	if err := attempt.ResetForRedrive(); err != nil {
		return nil, fmt.Errorf("%w: %s", shared.ErrInvalidState, err.Error())
	}
	if err := h.attempts.Update(ctx, attempt); err != nil {
		return nil, err
	}
	h.logger.Info("delivery redriven",
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("subscription_id", attempt.SubscriptionID.String()),
	)
	return attempt, nil
}
