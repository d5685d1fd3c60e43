package integration

import "context"

// ConfigRepository persists integration configs so registrations survive
// restarts. The in-memory Registry remains the source of truth at runtime;
// the repository is replayed into it on startup.
type ConfigRepository interface {
	Save(ctx context.Context, config *IntegrationConfig) error
	FindBySystemID(ctx context.Context, systemID string) (*IntegrationConfig, error)
	FindAll(ctx context.Context) ([]*IntegrationConfig, error)
	Delete(ctx context.Context, systemID string) error
}
