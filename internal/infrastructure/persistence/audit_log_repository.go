package persistence

import (
	"context"
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormAuditLogger implements shared.AuditLogger using GORM. Callers treat
// Record as best-effort; this implementation just reports the write error
// and leaves containment to them.
type GormAuditLogger struct {
	db *gorm.DB
}

// NewGormAuditLogger creates a new GormAuditLogger
func NewGormAuditLogger(db *gorm.DB) *GormAuditLogger {
	return &GormAuditLogger{db: db}
}

// Record appends an audit entry
func (r *GormAuditLogger) Record(ctx context.Context, entry *shared.AuditEntry) error {
	model := models.AuditEntryModelFromDomain(entry)
	return r.db.WithContext(ctx).Create(model).Error
}

// FindByTenant lists a tenant's audit entries in a time range, newest first
func (r *GormAuditLogger) FindByTenant(ctx context.Context, tenantID uuid.UUID, since time.Time, limit int) ([]*shared.AuditEntry, error) {
	var entryModels []models.AuditEntryModel
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND occurred_at >= ?", tenantID, since).
		Order("occurred_at DESC").
		Limit(limit).
		Find(&entryModels).Error; err != nil {
		return nil, err
	}

	entries := make([]*shared.AuditEntry, len(entryModels))
	for i := range entryModels {
		entries[i] = entryModels[i].ToDomain()
	}
	return entries, nil
}

// Ensure GormAuditLogger implements AuditLogger
var _ shared.AuditLogger = (*GormAuditLogger)(nil)
