package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormIntegrationConfigRepository implements integration.ConfigRepository using GORM
type GormIntegrationConfigRepository struct {
	db *gorm.DB
}

// NewGormIntegrationConfigRepository creates a new GormIntegrationConfigRepository
func NewGormIntegrationConfigRepository(db *gorm.DB) *GormIntegrationConfigRepository {
	return &GormIntegrationConfigRepository{db: db}
}

// Save creates or replaces the config for a system
func (r *GormIntegrationConfigRepository) Save(ctx context.Context, config *integration.IntegrationConfig) error {
	model := models.IntegrationConfigModelFromDomain(config)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "system_id"}},
			UpdateAll: true,
		}).
		Create(model).Error
}

// FindBySystemID finds the config registered for a system
func (r *GormIntegrationConfigRepository) FindBySystemID(ctx context.Context, systemID string) (*integration.IntegrationConfig, error) {
	var model models.IntegrationConfigModel
	if err := r.db.WithContext(ctx).First(&model, "system_id = ?", systemID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", integration.ErrSystemNotRegistered, systemID)
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindAll lists all registered configs
func (r *GormIntegrationConfigRepository) FindAll(ctx context.Context) ([]*integration.IntegrationConfig, error) {
	var configModels []models.IntegrationConfigModel
	if err := r.db.WithContext(ctx).
		Order("system_id ASC").
		Find(&configModels).Error; err != nil {
		return nil, err
	}

	configs := make([]*integration.IntegrationConfig, len(configModels))
	for i := range configModels {
		configs[i] = configModels[i].ToDomain()
	}
	return configs, nil
}

// Delete removes a system's config
func (r *GormIntegrationConfigRepository) Delete(ctx context.Context, systemID string) error {
	result := r.db.WithContext(ctx).Delete(&models.IntegrationConfigModel{}, "system_id = ?", systemID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", integration.ErrSystemNotRegistered, systemID)
	}
	return nil
}

// Ensure GormIntegrationConfigRepository implements ConfigRepository
var _ integration.ConfigRepository = (*GormIntegrationConfigRepository)(nil)
