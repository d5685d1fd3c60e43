package delivery

import (
	"context"
	"errors"
	"net"
	"os"
	"time"
)

// Default retry configuration
const (
	DefaultMaxAttempts   = 5
	DefaultBackoffFactor = 2.0
	DefaultBaseDelay     = time.Second
)

// RetryPolicy controls how failed deliveries are rescheduled
type RetryPolicy struct {
	// MaxAttempts is the total number of delivery attempts before the
	// delivery is marked permanently failed
	MaxAttempts int
	// BackoffFactor is the exponential growth factor between attempts
	BackoffFactor float64
	// BaseDelay is the delay before the first retry
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the standard policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   DefaultMaxAttempts,
		BackoffFactor: DefaultBackoffFactor,
		BaseDelay:     DefaultBaseDelay,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	return p
}

// CalculateDelay returns the delay before the retry following the given
// attempt number (0-based): base * factor^attempt. Monotonically
// non-decreasing for factors >= 1.
func (p RetryPolicy) CalculateDelay(attempt int) time.Duration {
	policy := p.withDefaults()
	delay := float64(policy.BaseDelay)
	for i := 0; i < attempt; i++ {
		delay *= policy.BackoffFactor
	}
	return time.Duration(delay)
}

// ---------------------------------------------------------------------------
// Failure classification
// ---------------------------------------------------------------------------

// FailureClass classifies a delivery failure
type FailureClass string

const (
	// FailureRetryable failures are rescheduled per policy
	FailureRetryable FailureClass = "RETRYABLE"
	// FailurePermanent failures are surfaced once and never retried
	FailurePermanent FailureClass = "PERMANENT"
)

// retryableStatusCodes are 4xx codes still worth retrying
var retryableStatusCodes = map[int]struct{}{
	408: {}, // request timeout
	429: {}, // too many requests
}

// ClassifyStatus classifies a remote HTTP status code. 2xx is not a failure
// and must not be passed here.
func ClassifyStatus(status int) FailureClass {
	switch {
	case status >= 500 && status <= 599:
		return FailureRetryable
	case status == 401 || status == 403:
		return FailurePermanent
	case status >= 400 && status <= 499:
		if _, ok := retryableStatusCodes[status]; ok {
			return FailureRetryable
		}
		return FailurePermanent
	default:
		// Unclassified: fail closed
		return FailurePermanent
	}
}

// ClassifyError classifies a transport-level error. Timeouts and connection
// failures are retryable; anything unrecognized fails closed as permanent.
func ClassifyError(err error) FailureClass {
	if err == nil {
		return FailurePermanent
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return FailureRetryable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureRetryable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return FailureRetryable
	}
	return FailurePermanent
}
