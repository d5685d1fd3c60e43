package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements Limiter on a shared redis counter store. Counters
// are mutated with atomic INCR and each bucket gets its expiry attached with
// NX semantics the first time it is created, so counters never outlive
// their window.
type RedisLimiter struct {
	client *redis.Client
	table  *LimitTable
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on an existing redis client
func NewRedisLimiter(client *redis.Client, table *LimitTable) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		table:  table,
		now:    time.Now,
	}
}

// Check increments the minute and day counters for (tenant, system) and
// returns a *LimitError if either configured threshold is exceeded.
func (l *RedisLimiter) Check(ctx context.Context, tenantID, systemID string) error {
	limits := l.table.Get(systemID)
	now := l.now()

	minuteCount, err := l.bump(ctx,
		counterKey(tenantID, systemID, WindowMinute, minuteWindow(now)), time.Minute)
	if err != nil {
		return fmt.Errorf("ratelimit: minute counter: %w", err)
	}

	dayCount, err := l.bump(ctx,
		counterKey(tenantID, systemID, WindowDay, dayWindow(now)), 24*time.Hour)
	if err != nil {
		return fmt.Errorf("ratelimit: day counter: %w", err)
	}

	if minuteCount > limits.PerMinute {
		return &LimitError{TenantID: tenantID, SystemID: systemID, Window: WindowMinute, Limit: limits.PerMinute}
	}
	if dayCount > limits.PerDay {
		return &LimitError{TenantID: tenantID, SystemID: systemID, Window: WindowDay, Limit: limits.PerDay}
	}
	return nil
}

// bump atomically increments a window counter and attaches the window expiry
// on first creation (idempotent set-if-absent)
func (l *RedisLimiter) bump(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
