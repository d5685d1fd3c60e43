package models

import (
	"time"

	"github.com/google/uuid"
)

// CoreRecordModel is the persistence model for canonical records produced by
// inbound processing. Records are stored as-is; downstream platform services
// own any further normalization.
type CoreRecordModel struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key"`
	TenantID  uuid.UUID `gorm:"type:uuid;not null;index:idx_core_records_tenant_kind,priority:1"`
	Kind      string    `gorm:"type:varchar(50);not null;index:idx_core_records_tenant_kind,priority:2"`
	DataJSON  string    `gorm:"type:jsonb;column:data;not null"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CoreRecordModel) TableName() string {
	return "core_records"
}
