package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAttemptRepository implements delivery.AttemptRepository using GORM
type GormAttemptRepository struct {
	db *gorm.DB
}

// NewGormAttemptRepository creates a new GormAttemptRepository
func NewGormAttemptRepository(db *gorm.DB) *GormAttemptRepository {
	return &GormAttemptRepository{db: db}
}

// Save persists one or more attempts
func (r *GormAttemptRepository) Save(ctx context.Context, attempts ...*delivery.Attempt) error {
	if len(attempts) == 0 {
		return nil
	}
	attemptModels := make([]*models.DeliveryAttemptModel, len(attempts))
	for i, a := range attempts {
		attemptModels[i] = models.DeliveryAttemptModelFromDomain(a)
	}
	return r.db.WithContext(ctx).Create(attemptModels).Error
}

// FindDue retrieves pending/failed attempts whose due time has passed,
// oldest first
func (r *GormAttemptRepository) FindDue(ctx context.Context, before time.Time, limit int) ([]*delivery.Attempt, error) {
	var attemptModels []models.DeliveryAttemptModel
	if err := r.db.WithContext(ctx).
		Where("status IN ? AND due_at <= ?",
			[]delivery.AttemptStatus{delivery.AttemptStatusPending, delivery.AttemptStatusFailed}, before).
		Order("due_at ASC").
		Limit(limit).
		Find(&attemptModels).Error; err != nil {
		return nil, err
	}
	return toDomainAttempts(attemptModels), nil
}

// FindByID retrieves a single attempt
func (r *GormAttemptRepository) FindByID(ctx context.Context, id uuid.UUID) (*delivery.Attempt, error) {
	var model models.DeliveryAttemptModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindByPair retrieves the attempt for an event/subscription pair
func (r *GormAttemptRepository) FindByPair(ctx context.Context, eventID, subscriptionID uuid.UUID) (*delivery.Attempt, error) {
	var model models.DeliveryAttemptModel
	if err := r.db.WithContext(ctx).
		Where("event_id = ? AND subscription_id = ?", eventID, subscriptionID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindBySubscription lists attempts for a subscription, newest first.
// An empty status lists all attempts regardless of status.
func (r *GormAttemptRepository) FindBySubscription(ctx context.Context, subscriptionID uuid.UUID, status delivery.AttemptStatus, limit int) ([]*delivery.Attempt, error) {
	var attemptModels []models.DeliveryAttemptModel
	query := r.db.WithContext(ctx).Where("subscription_id = ?", subscriptionID)
	if status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at DESC").Limit(limit).Find(&attemptModels).Error; err != nil {
		return nil, err
	}
	return toDomainAttempts(attemptModels), nil
}

// MarkProcessing atomically claims the given attempts and returns the ones
// actually claimed. Attempts already claimed by another worker are skipped.
func (r *GormAttemptRepository) MarkProcessing(ctx context.Context, ids []uuid.UUID) ([]*delivery.Attempt, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	// Each claim carries its own token and the follow-up select filters on
	// it. Selecting on status alone would hand back rows another hub
	// instance claimed from an overlapping batch.
	token := uuid.NewString()
	var claimed []models.DeliveryAttemptModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.DeliveryAttemptModel{}).
			Where("id IN ? AND status IN ?", ids,
				[]delivery.AttemptStatus{delivery.AttemptStatusPending, delivery.AttemptStatusFailed}).
			Updates(map[string]any{
				"status":     delivery.AttemptStatusProcessing,
				"claimed_by": token,
				"updated_at": time.Now(),
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		return tx.Where("claimed_by = ? AND status = ?", token, delivery.AttemptStatusProcessing).
			Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return toDomainAttempts(claimed), nil
}

// ReclaimStale requeues attempts stuck in PROCESSING since before the given
// cutoff, e.g. after a worker crash, and returns the number requeued.
func (r *GormAttemptRepository) ReclaimStale(ctx context.Context, stuckSince time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryAttemptModel{}).
		Where("status = ? AND updated_at < ?", delivery.AttemptStatusProcessing, stuckSince).
		Updates(map[string]any{
			"status":     delivery.AttemptStatusPending,
			"claimed_by": "",
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Update updates an existing attempt
func (r *GormAttemptRepository) Update(ctx context.Context, attempt *delivery.Attempt) error {
	model := models.DeliveryAttemptModelFromDomain(attempt)
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryAttemptModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"status":           model.Status,
			"retry_count":      model.RetryCount,
			"last_error":       model.LastError,
			"last_status_code": model.LastStatusCode,
			"due_at":           model.DueAt,
			"delivered_at":     model.DeliveredAt,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CountFailuresSince counts dead attempts for a subscription after a cutoff
func (r *GormAttemptRepository) CountFailuresSince(ctx context.Context, subscriptionID uuid.UUID, since time.Time) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.DeliveryAttemptModel{}).
		Where("subscription_id = ? AND status = ? AND updated_at >= ?",
			subscriptionID, delivery.AttemptStatusDead, since).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// DeleteOlderThan removes terminal attempts older than the cutoff and
// returns the number removed
func (r *GormAttemptRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?",
			[]delivery.AttemptStatus{delivery.AttemptStatusDelivered, delivery.AttemptStatusDead}, before).
		Delete(&models.DeliveryAttemptModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func toDomainAttempts(attemptModels []models.DeliveryAttemptModel) []*delivery.Attempt {
	attempts := make([]*delivery.Attempt, len(attemptModels))
	for i := range attemptModels {
		attempts[i] = attemptModels[i].ToDomain()
	}
	return attempts
}

// Ensure GormAttemptRepository implements AttemptRepository
var _ delivery.AttemptRepository = (*GormAttemptRepository)(nil)
