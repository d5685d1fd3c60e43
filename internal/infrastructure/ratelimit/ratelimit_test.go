package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimitTable_Defaults(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 10, PerDay: 100})

	assert.Equal(t, Limits{PerMinute: 10, PerDay: 100}, table.Get("unconfigured"))

	table.Set("dialfire", Limits{PerMinute: 5})
	assert.Equal(t, Limits{PerMinute: 5, PerDay: 100}, table.Get("dialfire"))
}

func TestLimitTable_ZeroDefaultsFallBack(t *testing.T) {
	table := NewLimitTable(Limits{})
	assert.Equal(t, DefaultLimits, table.Get("anything"))
}

func TestMemoryLimiter_AdmitsExactlyThreshold(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 3, PerDay: 100})
	limiter := NewMemoryLimiter(table)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"), "call %d", i+1)
	}

	err := limiter.Check(ctx, "tenant-a", "dialfire")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, WindowMinute, limitErr.Window)
	assert.Equal(t, int64(3), limitErr.Limit)
}

func TestMemoryLimiter_NewWindowResets(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 1, PerDay: 100})
	limiter := NewMemoryLimiter(table)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))
	assert.Error(t, limiter.Check(ctx, "tenant-a", "dialfire"))

	// Next minute bucket admits again
	now = now.Add(time.Minute)
	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))
}

func TestMemoryLimiter_DayWindow(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 100, PerDay: 2})
	limiter := NewMemoryLimiter(table)
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }

	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))
	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))

	err := limiter.Check(ctx, "tenant-a", "dialfire")
	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, WindowDay, limitErr.Window)

	// Next calendar day resets the counter
	now = now.Add(2 * time.Minute)
	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))
}

func TestMemoryLimiter_TenantsAreIsolated(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 1, PerDay: 100})
	limiter := NewMemoryLimiter(table)
	ctx := context.Background()

	require.NoError(t, limiter.Check(ctx, "tenant-a", "dialfire"))
	require.NoError(t, limiter.Check(ctx, "tenant-b", "dialfire"))
	require.NoError(t, limiter.Check(ctx, "tenant-a", "other-system"))
	assert.Error(t, limiter.Check(ctx, "tenant-a", "dialfire"))
}

func TestMemoryLimiter_ConcurrentChecks(t *testing.T) {
	table := NewLimitTable(Limits{PerMinute: 50, PerDay: 1000})
	limiter := NewMemoryLimiter(table)
	fixed := time.Date(2026, 3, 1, 10, 0, 30, 0, time.UTC)
	limiter.now = func() time.Time { return fixed }
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := limiter.Check(ctx, "tenant-a", "dialfire"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, admitted)
}

func TestLimitError_Message(t *testing.T) {
	err := &LimitError{TenantID: "t1", SystemID: "dialfire", Window: WindowMinute, Limit: 60}
	assert.Contains(t, err.Error(), "t1")
	assert.Contains(t, err.Error(), "dialfire")
	assert.Contains(t, err.Error(), "minute")

	var limitErr *LimitError
	assert.True(t, errors.As(error(err), &limitErr))
}
