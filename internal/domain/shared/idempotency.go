package shared

import (
	"context"
	"time"
)

// IdempotencyStore deduplicates webhook deliveries. Keys are formed from the
// (event ID, subscription ID) pair so an event is delivered to a given
// subscription at most once per logical attempt sequence; retries go through
// the scheduler, never through re-publication.
type IdempotencyStore interface {
	// MarkProcessed marks a delivery key as processed with a TTL.
	// Returns true if the key was newly marked, false if already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a delivery key has already been processed
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// DeliveryKey builds the idempotency key for an event/subscription pair
func DeliveryKey(eventID, subscriptionID string) string {
	return eventID + ":" + subscriptionID
}

// IdempotencyConfig holds configuration for delivery deduplication
type IdempotencyConfig struct {
	// TTL is how long a processed key is remembered. It must cover the
	// longest possible retry window for a delivery.
	TTL time.Duration

	// Enabled determines whether deduplication is enforced
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
