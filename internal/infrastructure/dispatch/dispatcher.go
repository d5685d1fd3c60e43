package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sender delivers one attempt to a subscription endpoint
type Sender interface {
	Send(ctx context.Context, attempt *delivery.Attempt, sub *delivery.Subscription) (int, error)
}

// Config holds dispatcher configuration
type Config struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	// IdempotencyTTL bounds how long a delivered (event, subscription) pair
	// is remembered
	IdempotencyTTL time.Duration
	// ClaimTimeout is how long a PROCESSING claim may stand before the
	// attempt is requeued; covers worker crashes and rows still queued in
	// memory when the process stops
	ClaimTimeout time.Duration
	// DeactivateAfter is the number of dead deliveries within
	// DeactivateWindow before the subscription is deactivated
	DeactivateAfter  int64
	DeactivateWindow time.Duration
	CleanupEnabled   bool
	CleanupRetention time.Duration
	CleanupInterval  time.Duration
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Workers:          8,
		BatchSize:        100,
		PollInterval:     5 * time.Second,
		IdempotencyTTL:   24 * time.Hour,
		ClaimTimeout:     5 * time.Minute,
		DeactivateAfter:  1,
		DeactivateWindow: 24 * time.Hour,
		CleanupEnabled:   true,
		CleanupRetention: 7 * 24 * time.Hour, // 7 days
		CleanupInterval:  1 * time.Hour,
	}
}

// Dispatcher drains due delivery attempts through a worker pool. Each
// (event, subscription) pair has exactly one attempt row, and a row is
// claimed before it is handed to a worker, so deliveries for a pair are
// strictly sequential even across hub instances.
type Dispatcher struct {
	attempts    delivery.AttemptRepository
	subs        delivery.SubscriptionRepository
	sender      Sender
	idempotency shared.IdempotencyStore
	config      Config
	logger      *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
	jobs   chan *delivery.Attempt
}

// NewDispatcher creates a dispatcher
func NewDispatcher(
	attempts delivery.AttemptRepository,
	subs delivery.SubscriptionRepository,
	sender Sender,
	idempotency shared.IdempotencyStore,
	config Config,
	logger *zap.Logger,
) *Dispatcher {
	if config.Workers <= 0 {
		config.Workers = DefaultConfig().Workers
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.IdempotencyTTL <= 0 {
		config.IdempotencyTTL = DefaultConfig().IdempotencyTTL
	}
	if config.ClaimTimeout <= 0 {
		config.ClaimTimeout = DefaultConfig().ClaimTimeout
	}
	if config.DeactivateAfter <= 0 {
		config.DeactivateAfter = DefaultConfig().DeactivateAfter
	}
	if config.DeactivateWindow <= 0 {
		config.DeactivateWindow = DefaultConfig().DeactivateWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		attempts:    attempts,
		subs:        subs,
		sender:      sender,
		idempotency: idempotency,
		config:      config,
		logger:      logger,
		jobs:        make(chan *delivery.Attempt, config.BatchSize),
	}
}

// Start starts the poll loop and workers
func (d *Dispatcher) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	for i := 0; i < d.config.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}

	d.wg.Add(1)
	go d.pollLoop(ctx)

	if d.config.CleanupEnabled {
		d.wg.Add(1)
		go d.cleanupLoop(ctx)
	}

	d.logger.Info("delivery dispatcher started",
		zap.Int("workers", d.config.Workers),
		zap.Int("batch_size", d.config.BatchSize),
		zap.Duration("poll_interval", d.config.PollInterval),
	)
	return nil
}

// Stop gracefully stops the dispatcher
func (d *Dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("delivery dispatcher stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pollLoop claims due attempts and feeds the workers
func (d *Dispatcher) pollLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.reclaimStale(ctx)
			d.dispatchBatch(ctx)
		}
	}
}

// reclaimStale requeues attempts whose claim outlived the timeout so a
// crashed worker cannot strand a delivery in PROCESSING forever
func (d *Dispatcher) reclaimStale(ctx context.Context) {
	cutoff := time.Now().Add(-d.config.ClaimTimeout)
	requeued, err := d.attempts.ReclaimStale(ctx, cutoff)
	if err != nil {
		d.logger.Error("failed to reclaim stale attempts", zap.Error(err))
		return
	}
	if requeued > 0 {
		d.logger.Warn("requeued stale delivery claims",
			zap.Int64("requeued", requeued),
			zap.Duration("claim_timeout", d.config.ClaimTimeout),
		)
	}
}

// dispatchBatch claims one batch of due attempts
func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	due, err := d.attempts.FindDue(ctx, time.Now(), d.config.BatchSize)
	if err != nil {
		d.logger.Error("failed to find due attempts", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	ids := make([]uuid.UUID, len(due))
	for i, a := range due {
		ids[i] = a.ID
	}

	// Atomically claim; attempts grabbed by another instance are skipped
	claimed, err := d.attempts.MarkProcessing(ctx, ids)
	if err != nil {
		d.logger.Error("failed to claim attempts", zap.Error(err))
		return
	}

	for _, attempt := range claimed {
		select {
		case <-ctx.Done():
			return
		case d.jobs <- attempt:
		}
	}
}

// worker drains the job channel
func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case attempt := <-d.jobs:
			d.deliver(ctx, attempt)
		}
	}
}

// deliver performs one delivery attempt end to end
func (d *Dispatcher) deliver(ctx context.Context, attempt *delivery.Attempt) {
	log := d.logger.With(
		zap.String("attempt_id", attempt.ID.String()),
		zap.String("event_id", attempt.EventID.String()),
		zap.String("subscription_id", attempt.SubscriptionID.String()),
		zap.String("event_type", attempt.EventType),
	)

	key := shared.DeliveryKey(attempt.EventID.String(), attempt.SubscriptionID.String())
	processed, err := d.idempotency.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("idempotency check failed, proceeding with delivery", zap.Error(err))
	}
	if processed {
		attempt.MarkDelivered()
		d.update(ctx, attempt, log)
		log.Debug("delivery skipped, pair already delivered")
		return
	}

	sub, err := d.subs.FindByID(ctx, attempt.SubscriptionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			attempt.MarkFailed(delivery.FailurePermanent, delivery.DefaultRetryPolicy(), "subscription no longer exists", 0)
			d.update(ctx, attempt, log)
			return
		}
		// Transient lookup failure: release the claim for the next poll
		attempt.MarkFailed(delivery.FailureRetryable, delivery.DefaultRetryPolicy(), err.Error(), 0)
		d.update(ctx, attempt, log)
		return
	}
	if !sub.IsActive {
		attempt.MarkFailed(delivery.FailurePermanent, sub.RetryPolicy, "subscription is inactive", 0)
		d.update(ctx, attempt, log)
		return
	}

	status, err := d.sender.Send(ctx, attempt, sub)
	switch {
	case err != nil:
		class := delivery.ClassifyError(err)
		scheduled := attempt.MarkFailed(class, sub.RetryPolicy, err.Error(), 0)
		log.Warn("delivery failed",
			zap.String("class", string(class)),
			zap.Bool("retry_scheduled", scheduled),
			zap.Error(err),
		)
	case IsSuccessStatus(status):
		attempt.MarkDelivered()
		if _, err := d.idempotency.MarkProcessed(ctx, key, d.config.IdempotencyTTL); err != nil {
			log.Warn("failed to record delivered pair", zap.Error(err))
		}
		log.Debug("delivered", zap.Int("status", status))
	default:
		class := delivery.ClassifyStatus(status)
		scheduled := attempt.MarkFailed(class, sub.RetryPolicy,
			fmt.Sprintf("endpoint returned status %d", status), status)
		log.Warn("delivery rejected",
			zap.Int("status", status),
			zap.String("class", string(class)),
			zap.Bool("retry_scheduled", scheduled),
		)
	}

	d.update(ctx, attempt, log)

	if attempt.IsDead() {
		d.maybeDeactivate(ctx, sub, log)
	}
}

func (d *Dispatcher) update(ctx context.Context, attempt *delivery.Attempt, log *zap.Logger) {
	if err := d.attempts.Update(ctx, attempt); err != nil {
		log.Error("failed to update attempt", zap.Error(err))
	}
}

// maybeDeactivate disables a subscription whose deliveries keep dying
func (d *Dispatcher) maybeDeactivate(ctx context.Context, sub *delivery.Subscription, log *zap.Logger) {
	since := time.Now().Add(-d.config.DeactivateWindow)
	count, err := d.attempts.CountFailuresSince(ctx, sub.ID, since)
	if err != nil {
		log.Error("failed to count dead deliveries", zap.Error(err))
		return
	}
	if count < d.config.DeactivateAfter {
		return
	}

	sub.Deactivate()
	if err := d.subs.Update(ctx, sub); err != nil {
		log.Error("failed to deactivate subscription", zap.Error(err))
		return
	}
	log.Warn("subscription deactivated after exhausted deliveries",
		zap.Int64("dead_deliveries", count),
		zap.Duration("window", d.config.DeactivateWindow),
	)
}

// cleanupLoop periodically removes old terminal attempts
func (d *Dispatcher) cleanupLoop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cleanup(ctx)
		}
	}
}

// cleanup removes delivered and dead attempts past retention
func (d *Dispatcher) cleanup(ctx context.Context) {
	cutoff := time.Now().Add(-d.config.CleanupRetention)
	deleted, err := d.attempts.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		d.logger.Error("failed to clean up old attempts", zap.Error(err))
		return
	}
	if deleted > 0 {
		d.logger.Info("cleaned up old delivery attempts",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff),
		)
	}
}
