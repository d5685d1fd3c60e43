package cache

import (
	"context"
	"testing"
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	key := shared.DeliveryKey("evt-1", "sub-1")

	newlyMarked, err := store.MarkProcessed(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.True(t, newlyMarked)

	// Second mark for the same pair is rejected
	newlyMarked, err = store.MarkProcessed(ctx, key, time.Hour)
	require.NoError(t, err)
	assert.False(t, newlyMarked)

	// A different subscription for the same event is independent
	newlyMarked, err = store.MarkProcessed(ctx, shared.DeliveryKey("evt-1", "sub-2"), time.Hour)
	require.NoError(t, err)
	assert.True(t, newlyMarked)
}

func TestInMemoryIdempotencyStore_IsProcessed(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	processed, err := store.IsProcessed(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, processed)

	_, err = store.MarkProcessed(ctx, "present", time.Hour)
	require.NoError(t, err)

	processed, err = store.IsProcessed(ctx, "present")
	require.NoError(t, err)
	assert.True(t, processed)
}

func TestInMemoryIdempotencyStore_Expiry(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	defer store.Close()
	ctx := context.Background()

	_, err := store.MarkProcessed(ctx, "short", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	processed, err := store.IsProcessed(ctx, "short")
	require.NoError(t, err)
	assert.False(t, processed)

	// Expired keys can be re-marked
	newlyMarked, err := store.MarkProcessed(ctx, "short", time.Hour)
	require.NoError(t, err)
	assert.True(t, newlyMarked)
}

func TestInMemoryIdempotencyStore_CloseIsIdempotent(t *testing.T) {
	store := NewInMemoryIdempotencyStore()
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}
