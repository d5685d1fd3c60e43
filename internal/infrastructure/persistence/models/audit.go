package models

import (
	"time"

	"github.com/crm/hub/internal/domain/shared"
	"github.com/google/uuid"
)

// AuditEntryModel is the persistence model for hub operation audit entries.
// Append-only; entries are never updated.
type AuditEntryModel struct {
	ID         uuid.UUID           `gorm:"type:uuid;primary_key"`
	TenantID   uuid.UUID           `gorm:"type:uuid;not null;index:idx_audit_tenant,priority:1"`
	SystemID   string              `gorm:"type:varchar(100);index"`
	Operation  string              `gorm:"type:varchar(100);not null"`
	Outcome    shared.AuditOutcome `gorm:"type:varchar(20);not null"`
	Error      string              `gorm:"type:text"`
	OccurredAt time.Time           `gorm:"not null;index:idx_audit_tenant,priority:2"`
}

// TableName returns the table name for GORM
func (AuditEntryModel) TableName() string {
	return "audit_entries"
}

// ToDomain converts the persistence model to a domain AuditEntry.
func (m *AuditEntryModel) ToDomain() *shared.AuditEntry {
	return &shared.AuditEntry{
		ID:         m.ID,
		TenantID:   m.TenantID,
		SystemID:   m.SystemID,
		Operation:  m.Operation,
		Outcome:    m.Outcome,
		Error:      m.Error,
		OccurredAt: m.OccurredAt,
	}
}

// FromDomain populates the persistence model from a domain AuditEntry.
func (m *AuditEntryModel) FromDomain(e *shared.AuditEntry) {
	m.ID = e.ID
	m.TenantID = e.TenantID
	m.SystemID = e.SystemID
	m.Operation = e.Operation
	m.Outcome = e.Outcome
	m.Error = e.Error
	m.OccurredAt = e.OccurredAt
}

// AuditEntryModelFromDomain creates a new persistence model from a domain AuditEntry.
func AuditEntryModelFromDomain(e *shared.AuditEntry) *AuditEntryModel {
	m := &AuditEntryModel{}
	m.FromDomain(e)
	return m
}
