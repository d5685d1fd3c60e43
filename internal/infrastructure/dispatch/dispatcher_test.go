package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/cache"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// In-memory test doubles
// ---------------------------------------------------------------------------

type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*delivery.Attempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: make(map[uuid.UUID]*delivery.Attempt)}
}

func (m *memAttempts) Save(_ context.Context, attempts ...*delivery.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range attempts {
		copied := *a
		m.attempts[a.ID] = &copied
	}
	return nil
}

func (m *memAttempts) FindDue(_ context.Context, before time.Time, limit int) ([]*delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*delivery.Attempt
	for _, a := range m.attempts {
		if len(due) >= limit {
			break
		}
		if (a.Status == delivery.AttemptStatusPending || a.Status == delivery.AttemptStatusFailed) &&
			!a.DueAt.After(before) {
			copied := *a
			due = append(due, &copied)
		}
	}
	return due, nil
}

func (m *memAttempts) FindByID(_ context.Context, id uuid.UUID) (*delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *memAttempts) FindByPair(_ context.Context, eventID, subscriptionID uuid.UUID) (*delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.EventID == eventID && a.SubscriptionID == subscriptionID {
			copied := *a
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memAttempts) FindBySubscription(_ context.Context, subscriptionID uuid.UUID, status delivery.AttemptStatus, limit int) ([]*delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Attempt
	for _, a := range m.attempts {
		if a.SubscriptionID != subscriptionID {
			continue
		}
		if status != "" && a.Status != status {
			continue
		}
		if len(out) >= limit {
			break
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (m *memAttempts) MarkProcessing(_ context.Context, ids []uuid.UUID) ([]*delivery.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*delivery.Attempt
	for _, id := range ids {
		a, ok := m.attempts[id]
		if !ok {
			continue
		}
		if err := a.MarkProcessing(); err != nil {
			continue
		}
		copied := *a
		claimed = append(claimed, &copied)
	}
	return claimed, nil
}

func (m *memAttempts) ReclaimStale(_ context.Context, stuckSince time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var requeued int64
	for _, a := range m.attempts {
		if a.Status == delivery.AttemptStatusProcessing && a.UpdatedAt.Before(stuckSince) {
			a.Status = delivery.AttemptStatusPending
			a.UpdatedAt = time.Now()
			requeued++
		}
	}
	return requeued, nil
}

func (m *memAttempts) Update(_ context.Context, attempt *delivery.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[attempt.ID]; !ok {
		return shared.ErrNotFound
	}
	copied := *attempt
	m.attempts[attempt.ID] = &copied
	return nil
}

func (m *memAttempts) CountFailuresSince(_ context.Context, subscriptionID uuid.UUID, since time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, a := range m.attempts {
		if a.SubscriptionID == subscriptionID && a.Status == delivery.AttemptStatusDead && !a.UpdatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memAttempts) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for id, a := range m.attempts {
		if (a.Status == delivery.AttemptStatusDelivered || a.Status == delivery.AttemptStatusDead) &&
			a.UpdatedAt.Before(before) {
			delete(m.attempts, id)
			removed++
		}
	}
	return removed, nil
}

type memSubs struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*delivery.Subscription
}

func newMemSubs() *memSubs {
	return &memSubs{subs: make(map[uuid.UUID]*delivery.Subscription)}
}

func (m *memSubs) Save(_ context.Context, sub *delivery.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *memSubs) FindByID(_ context.Context, id uuid.UUID) (*delivery.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (m *memSubs) FindActiveByEvent(_ context.Context, tenantID uuid.UUID, eventType string) ([]*delivery.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Subscription
	for _, sub := range m.subs {
		if sub.TenantID == tenantID && sub.IsActive && sub.Matches(eventType) {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memSubs) FindByTenant(_ context.Context, tenantID uuid.UUID) ([]*delivery.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*delivery.Subscription
	for _, sub := range m.subs {
		if sub.TenantID == tenantID {
			copied := *sub
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memSubs) Update(_ context.Context, sub *delivery.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return shared.ErrNotFound
	}
	copied := *sub
	m.subs[sub.ID] = &copied
	return nil
}

func (m *memSubs) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs, id)
	return nil
}

// stubSender returns scripted statuses in order, repeating the last one
type stubSender struct {
	mu       sync.Mutex
	statuses []int
	errs     []error
	calls    int
}

func (s *stubSender) Send(_ context.Context, _ *delivery.Attempt, _ *delivery.Subscription) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	var err error
	if len(s.errs) > 0 {
		j := i
		if j >= len(s.errs) {
			j = len(s.errs) - 1
		}
		err = s.errs[j]
	}
	return s.statuses[i], err
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func newTestDispatcher(t *testing.T, sender Sender, cfg Config) (*Dispatcher, *memAttempts, *memSubs) {
	t.Helper()
	attempts := newMemAttempts()
	subs := newMemSubs()
	store := cache.NewInMemoryIdempotencyStore()
	t.Cleanup(func() { _ = store.Close() })
	return NewDispatcher(attempts, subs, sender, store, cfg, nil), attempts, subs
}

func seedAttempt(t *testing.T, attempts *memAttempts, subs *memSubs) *delivery.Attempt {
	t.Helper()
	tenantID := uuid.New()
	event := delivery.NewWebhookEvent("contact.created", "", tenantID, map[string]any{"phone": "+15551234567"})
	sub, err := delivery.NewSubscription(tenantID, "https://receiver.example.com/hook",
		[]string{"*"}, delivery.RetryPolicy{MaxAttempts: 3, BackoffFactor: 2, BaseDelay: time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, subs.Save(context.Background(), sub))

	payload, err := json.Marshal(event)
	require.NoError(t, err)
	attempt := delivery.NewAttempt(event, sub, payload)
	require.NoError(t, attempts.Save(context.Background(), attempt))
	return attempt
}

func claim(t *testing.T, attempts *memAttempts, id uuid.UUID) *delivery.Attempt {
	t.Helper()
	claimed, err := attempts.MarkProcessing(context.Background(), []uuid.UUID{id})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	return claimed[0]
}

func TestDispatcher_Deliver(t *testing.T) {
	ctx := context.Background()

	t.Run("success marks delivered and remembers the pair", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDelivered, stored.Status)
		require.NotNil(t, stored.DeliveredAt)

		key := shared.DeliveryKey(attempt.EventID.String(), attempt.SubscriptionID.String())
		processed, err := d.idempotency.IsProcessed(ctx, key)
		require.NoError(t, err)
		assert.True(t, processed)
	})

	t.Run("already delivered pair is not sent again", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		key := shared.DeliveryKey(attempt.EventID.String(), attempt.SubscriptionID.String())
		_, err := d.idempotency.MarkProcessed(ctx, key, time.Hour)
		require.NoError(t, err)

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		assert.Equal(t, 0, sender.calls)
		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDelivered, stored.Status)
	})

	t.Run("503 schedules a retry with backoff", func(t *testing.T) {
		sender := &stubSender{statuses: []int{503}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusFailed, stored.Status)
		assert.Equal(t, 1, stored.RetryCount)
		assert.Equal(t, 503, stored.LastStatusCode)
	})

	t.Run("repeated 503 exhausts the policy and deactivates the subscription", func(t *testing.T) {
		sender := &stubSender{statuses: []int{503}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		// MaxAttempts is 3 for the seeded policy
		for i := 0; i < 3; i++ {
			d.deliver(ctx, claim(t, attempts, attempt.ID))
		}

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDead, stored.Status)
		assert.Equal(t, 3, stored.RetryCount)

		sub, err := subs.FindByID(ctx, attempt.SubscriptionID)
		require.NoError(t, err)
		assert.False(t, sub.IsActive)
	})

	t.Run("400 goes dead immediately", func(t *testing.T) {
		sender := &stubSender{statuses: []int{400}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDead, stored.Status)
		assert.Equal(t, 1, sender.calls)
	})

	t.Run("missing subscription goes dead", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)
		require.NoError(t, subs.Delete(ctx, attempt.SubscriptionID))

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDead, stored.Status)
		assert.Equal(t, 0, sender.calls)
	})

	t.Run("inactive subscription is not delivered to", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		d, attempts, subs := newTestDispatcher(t, sender, DefaultConfig())
		attempt := seedAttempt(t, attempts, subs)

		sub, err := subs.FindByID(ctx, attempt.SubscriptionID)
		require.NoError(t, err)
		sub.Deactivate()
		require.NoError(t, subs.Update(ctx, sub))

		d.deliver(ctx, claim(t, attempts, attempt.ID))

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDead, stored.Status)
		assert.Equal(t, 0, sender.calls)
	})
}

func TestDispatcher_ReclaimStale(t *testing.T) {
	ctx := context.Background()

	t.Run("stale claim is requeued and delivered", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		cfg := DefaultConfig()
		cfg.ClaimTimeout = time.Minute
		d, attempts, subs := newTestDispatcher(t, sender, cfg)
		attempt := seedAttempt(t, attempts, subs)

		// Claim and simulate the claiming worker dying before delivery
		claim(t, attempts, attempt.ID)
		attempts.mu.Lock()
		attempts.attempts[attempt.ID].UpdatedAt = time.Now().Add(-2 * time.Minute)
		attempts.mu.Unlock()

		d.reclaimStale(ctx)

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusPending, stored.Status)

		// The requeued attempt goes through a normal cycle again
		d.deliver(ctx, claim(t, attempts, attempt.ID))
		stored, err = attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusDelivered, stored.Status)
	})

	t.Run("fresh claim is left alone", func(t *testing.T) {
		sender := &stubSender{statuses: []int{200}}
		cfg := DefaultConfig()
		cfg.ClaimTimeout = time.Minute
		d, attempts, subs := newTestDispatcher(t, sender, cfg)
		attempt := seedAttempt(t, attempts, subs)

		claim(t, attempts, attempt.ID)
		d.reclaimStale(ctx)

		stored, err := attempts.FindByID(ctx, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, delivery.AttemptStatusProcessing, stored.Status)
	})
}

func TestDispatcher_StartStop(t *testing.T) {
	sender := &stubSender{statuses: []int{200}}
	cfg := DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	cfg.Workers = 2

	d, attempts, subs := newTestDispatcher(t, sender, cfg)
	attempt := seedAttempt(t, attempts, subs)

	require.NoError(t, d.Start(context.Background()))

	// Wait for the poll loop to pick up and deliver the attempt
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, err := attempts.FindByID(context.Background(), attempt.ID)
		require.NoError(t, err)
		if stored.Status == delivery.AttemptStatusDelivered {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Stop(stopCtx))

	stored, err := attempts.FindByID(context.Background(), attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, delivery.AttemptStatusDelivered, stored.Status)
}
