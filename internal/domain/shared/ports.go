package shared

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CoreDataService is the port to the platform's canonical record store.
// The hub never persists canonical contacts or interactions itself; every
// transformed inbound payload is handed to this collaborator.
type CoreDataService interface {
	// Persist stores a canonical record of the given kind (e.g. "interaction",
	// "contact") for the tenant and returns the stored record's ID.
	Persist(ctx context.Context, kind string, record map[string]any, tc TenantContext) (uuid.UUID, error)
}

// TenantAuthority is the port to the platform's permission service
type TenantAuthority interface {
	// ResolvePermissions returns the permission set for the tenant principal
	ResolvePermissions(ctx context.Context, tc TenantContext) (PermissionSet, error)
}

// SecretStore resolves per-system webhook verification secrets.
// Secrets are owned by an external store, never by the hub.
type SecretStore interface {
	// GetSecret returns the signing secret for the given external system
	GetSecret(ctx context.Context, systemID string) (string, error)
}

// AuditOutcome classifies the result recorded in an audit entry
type AuditOutcome string

const (
	AuditOutcomeSuccess  AuditOutcome = "SUCCESS"
	AuditOutcomeFailure  AuditOutcome = "FAILURE"
	AuditOutcomeRejected AuditOutcome = "REJECTED"
)

// AuditEntry records the outcome of a hub operation for a tenant and system
type AuditEntry struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	SystemID   string
	Operation  string
	Outcome    AuditOutcome
	Error      string
	OccurredAt time.Time
}

// NewAuditEntry creates an audit entry timestamped now
func NewAuditEntry(tenantID uuid.UUID, systemID, operation string, outcome AuditOutcome, errMsg string) *AuditEntry {
	return &AuditEntry{
		ID:         uuid.New(),
		TenantID:   tenantID,
		SystemID:   systemID,
		Operation:  operation,
		Outcome:    outcome,
		Error:      errMsg,
		OccurredAt: time.Now(),
	}
}

// AuditLogger records audit entries. Implementations are best-effort: a
// failed write must be contained by the caller and never fail the operation
// being audited.
type AuditLogger interface {
	Record(ctx context.Context, entry *AuditEntry) error
}
