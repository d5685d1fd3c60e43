package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSubscriptionRepository implements delivery.SubscriptionRepository using GORM
type GormSubscriptionRepository struct {
	db *gorm.DB
}

// NewGormSubscriptionRepository creates a new GormSubscriptionRepository
func NewGormSubscriptionRepository(db *gorm.DB) *GormSubscriptionRepository {
	return &GormSubscriptionRepository{db: db}
}

// Save creates a subscription
func (r *GormSubscriptionRepository) Save(ctx context.Context, sub *delivery.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByID finds a subscription by its ID
func (r *GormSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*delivery.Subscription, error) {
	var model models.SubscriptionModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindActiveByEvent lists active subscriptions of a tenant whose event type
// list matches the given type. Wildcard subscriptions ("*") match every type.
func (r *GormSubscriptionRepository) FindActiveByEvent(ctx context.Context, tenantID uuid.UUID, eventType string) ([]*delivery.Subscription, error) {
	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Where("event_types @> ? OR event_types @> ?",
			fmt.Sprintf(`["%s"]`, eventType), `["*"]`).
		Order("created_at ASC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}

	subs := make([]*delivery.Subscription, len(subModels))
	for i := range subModels {
		subs[i] = subModels[i].ToDomain()
	}
	return subs, nil
}

// FindByTenant lists all subscriptions of a tenant
func (r *GormSubscriptionRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*delivery.Subscription, error) {
	var subModels []models.SubscriptionModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&subModels).Error; err != nil {
		return nil, err
	}

	subs := make([]*delivery.Subscription, len(subModels))
	for i := range subModels {
		subs[i] = subModels[i].ToDomain()
	}
	return subs, nil
}

// Update updates an existing subscription
func (r *GormSubscriptionRepository) Update(ctx context.Context, sub *delivery.Subscription) error {
	model := models.SubscriptionModelFromDomain(sub)
	result := r.db.WithContext(ctx).
		Model(&models.SubscriptionModel{}).
		Where("id = ?", model.ID).
		Updates(map[string]any{
			"endpoint_url":   model.EndpointURL,
			"event_types":    model.EventTypesJSON,
			"secret":         model.Secret,
			"is_active":      model.IsActive,
			"max_attempts":   model.MaxAttempts,
			"backoff_factor": model.BackoffFactor,
			"base_delay_ms":  model.BaseDelayMs,
			"updated_at":     model.UpdatedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Delete removes a subscription
func (r *GormSubscriptionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.SubscriptionModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Ensure GormSubscriptionRepository implements SubscriptionRepository
var _ delivery.SubscriptionRepository = (*GormSubscriptionRepository)(nil)
