package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormCoreDataService implements shared.CoreDataService by appending
// canonical records to the core_records table. The hub only writes here;
// reads belong to the platform services that consume canonical data.
type GormCoreDataService struct {
	db *gorm.DB
}

// NewGormCoreDataService creates a new GormCoreDataService
func NewGormCoreDataService(db *gorm.DB) *GormCoreDataService {
	return &GormCoreDataService{db: db}
}

// Persist stores a canonical record for the tenant and returns its ID
func (s *GormCoreDataService) Persist(ctx context.Context, kind string, record map[string]any, tc shared.TenantContext) (uuid.UUID, error) {
	if err := tc.Validate(); err != nil {
		return uuid.Nil, err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to encode canonical record: %w", err)
	}

	model := &models.CoreRecordModel{
		ID:        uuid.New(),
		TenantID:  tc.TenantID,
		Kind:      kind,
		DataJSON:  string(data),
		CreatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(model).Error; err != nil {
		return uuid.Nil, err
	}
	return model.ID, nil
}

// Ensure GormCoreDataService implements CoreDataService
var _ shared.CoreDataService = (*GormCoreDataService)(nil)
