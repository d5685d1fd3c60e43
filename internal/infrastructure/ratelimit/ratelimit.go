// Package ratelimit provides tenant+system scoped admission control using
// fixed time-window counters. The counter store is shared state (redis) so
// limits hold across hub instances; an in-memory implementation backs tests
// and single-node development.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// WindowKind identifies a counting window
type WindowKind string

const (
	WindowMinute WindowKind = "minute"
	WindowDay    WindowKind = "day"
)

// Limits holds the admission thresholds for one system
type Limits struct {
	PerMinute int64
	PerDay    int64
}

// DefaultLimits applies when a system has no explicit configuration
var DefaultLimits = Limits{PerMinute: 60, PerDay: 10000}

// LimitError reports an exceeded window. Callers must not proceed with the
// operation that triggered the check.
type LimitError struct {
	TenantID string
	SystemID string
	Window   WindowKind
	Limit    int64
}

// Error implements the error interface
func (e *LimitError) Error() string {
	return fmt.Sprintf("ratelimit: tenant %s exceeded %s limit of %d for system %s",
		e.TenantID, e.Window, e.Limit, e.SystemID)
}

// Limiter performs admission checks. Check increments the counters for the
// current windows and returns a *LimitError when either threshold is
// exceeded.
type Limiter interface {
	Check(ctx context.Context, tenantID, systemID string) error
}

// LimitTable holds per-system limits with a fallback default. Safe for
// concurrent use; owned by the hub instance.
type LimitTable struct {
	mu       sync.RWMutex
	limits   map[string]Limits
	defaults Limits
}

// NewLimitTable creates a table with the given fallback defaults
func NewLimitTable(defaults Limits) *LimitTable {
	if defaults.PerMinute <= 0 {
		defaults.PerMinute = DefaultLimits.PerMinute
	}
	if defaults.PerDay <= 0 {
		defaults.PerDay = DefaultLimits.PerDay
	}
	return &LimitTable{
		limits:   make(map[string]Limits),
		defaults: defaults,
	}
}

// Set overrides the limits for a system. Non-positive fields fall back to
// the table defaults.
func (t *LimitTable) Set(systemID string, limits Limits) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limits.PerMinute <= 0 {
		limits.PerMinute = t.defaults.PerMinute
	}
	if limits.PerDay <= 0 {
		limits.PerDay = t.defaults.PerDay
	}
	t.limits[systemID] = limits
}

// Get returns the limits for a system, falling back to the defaults
func (t *LimitTable) Get(systemID string) Limits {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if limits, ok := t.limits[systemID]; ok {
		return limits
	}
	return t.defaults
}

// minuteWindow returns the current 60-second epoch bucket
func minuteWindow(now time.Time) string {
	return fmt.Sprintf("%d", now.Unix()/60)
}

// dayWindow returns the current UTC calendar date bucket
func dayWindow(now time.Time) string {
	return now.UTC().Format("2006-01-02")
}

func counterKey(tenantID, systemID string, kind WindowKind, window string) string {
	return fmt.Sprintf("ratelimit:%s:%s:%s:%s", tenantID, systemID, kind, window)
}
