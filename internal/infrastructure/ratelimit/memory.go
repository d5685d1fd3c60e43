package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLimiter implements Limiter with in-process counters. Suitable for
// tests and single-node development; production uses RedisLimiter so limits
// hold across hub instances.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*memoryCounter
	table    *LimitTable
	now      func() time.Time
}

type memoryCounter struct {
	count     int64
	expiresAt time.Time
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(table *LimitTable) *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*memoryCounter),
		table:    table,
		now:      time.Now,
	}
}

// Check increments the minute and day counters for (tenant, system) and
// returns a *LimitError if either configured threshold is exceeded.
func (l *MemoryLimiter) Check(ctx context.Context, tenantID, systemID string) error {
	limits := l.table.Get(systemID)
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	minuteCount := l.bump(counterKey(tenantID, systemID, WindowMinute, minuteWindow(now)), now, time.Minute)
	dayCount := l.bump(counterKey(tenantID, systemID, WindowDay, dayWindow(now)), now, 24*time.Hour)

	if minuteCount > limits.PerMinute {
		return &LimitError{TenantID: tenantID, SystemID: systemID, Window: WindowMinute, Limit: limits.PerMinute}
	}
	if dayCount > limits.PerDay {
		return &LimitError{TenantID: tenantID, SystemID: systemID, Window: WindowDay, Limit: limits.PerDay}
	}
	return nil
}

func (l *MemoryLimiter) bump(key string, now time.Time, window time.Duration) int64 {
	c, ok := l.counters[key]
	if !ok || now.After(c.expiresAt) {
		c = &memoryCounter{expiresAt: now.Add(window)}
		l.counters[key] = c
	}
	c.count++
	return c.count
}
