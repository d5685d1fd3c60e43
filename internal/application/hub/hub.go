// Package hub wires the integration subsystems behind one facade. All
// interface-layer entry points (HTTP handlers, startup replay) talk to the
// Hub; nothing below it is reached directly.
package hub

import (
	"context"
	"errors"
	"fmt"

	"github.com/crm/hub/internal/domain/delivery"
	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/mapping"
	"github.com/crm/hub/internal/domain/shared"
	"github.com/crm/hub/internal/infrastructure/connectors"
	"github.com/crm/hub/internal/infrastructure/ratelimit"
	"github.com/crm/hub/internal/infrastructure/signature"
	"go.uber.org/zap"
)

// Permission keys checked on management operations
const (
	PermManageIntegrations  = "integrations:manage"
	PermSyncData            = "data:sync"
	PermManageSubscriptions = "subscriptions:manage"
)

var (
	ErrPermissionDenied  = errors.New("hub: permission denied")
	ErrMissingDependency = errors.New("hub: missing dependency")
)

// Dependencies holds the collaborators a Hub needs
type Dependencies struct {
	Registry    *integration.Registry
	Mapper      *mapping.Mapper
	Validator   *signature.Validator
	Limiter     ratelimit.Limiter
	Limits      *ratelimit.LimitTable
	Configs     integration.ConfigRepository
	Subs        delivery.SubscriptionRepository
	Attempts    delivery.AttemptRepository
	Idempotency shared.IdempotencyStore
	CoreData    shared.CoreDataService
	Authority   shared.TenantAuthority
	Audit       shared.AuditLogger
	Logger      *zap.Logger
}

// Hub is the integration facade. One instance per process; all fields are
// set at construction and never replaced.
type Hub struct {
	registry    *integration.Registry
	mapper      *mapping.Mapper
	validator   *signature.Validator
	limiter     ratelimit.Limiter
	limits      *ratelimit.LimitTable
	configs     integration.ConfigRepository
	subs        delivery.SubscriptionRepository
	attempts    delivery.AttemptRepository
	idempotency shared.IdempotencyStore
	coreData    shared.CoreDataService
	authority   shared.TenantAuthority
	audit       shared.AuditLogger
	logger      *zap.Logger
}

// New creates a Hub from its dependencies
func New(deps Dependencies) (*Hub, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Mapper == nil:
		return nil, fmt.Errorf("%w: mapper", ErrMissingDependency)
	case deps.Validator == nil:
		return nil, fmt.Errorf("%w: signature validator", ErrMissingDependency)
	case deps.Limiter == nil:
		return nil, fmt.Errorf("%w: rate limiter", ErrMissingDependency)
	case deps.Configs == nil:
		return nil, fmt.Errorf("%w: config repository", ErrMissingDependency)
	case deps.Subs == nil:
		return nil, fmt.Errorf("%w: subscription repository", ErrMissingDependency)
	case deps.Attempts == nil:
		return nil, fmt.Errorf("%w: attempt repository", ErrMissingDependency)
	case deps.CoreData == nil:
		return nil, fmt.Errorf("%w: core data service", ErrMissingDependency)
	}
	if deps.Limits == nil {
		deps.Limits = ratelimit.NewLimitTable(ratelimit.DefaultLimits)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Hub{
		registry:    deps.Registry,
		mapper:      deps.Mapper,
		validator:   deps.Validator,
		limiter:     deps.Limiter,
		limits:      deps.Limits,
		configs:     deps.Configs,
		subs:        deps.Subs,
		attempts:    deps.Attempts,
		idempotency: deps.Idempotency,
		coreData:    deps.CoreData,
		authority:   deps.Authority,
		audit:       deps.Audit,
		logger:      deps.Logger,
	}, nil
}

// ---------------------------------------------------------------------------
// Integration registration
// ---------------------------------------------------------------------------

// RegisterIntegration builds a connector for the config, registers it and
// its mapping rule, and persists the config so the registration survives
// restarts.
func (h *Hub) RegisterIntegration(ctx context.Context, config *integration.IntegrationConfig, tc shared.TenantContext) error {
	tc, err := h.authorize(ctx, tc, PermManageIntegrations)
	if err != nil {
		return err
	}
	if err := h.register(config); err != nil {
		h.recordAudit(ctx, tc, config.SystemID, "register_integration", shared.AuditOutcomeRejected, err.Error())
		return err
	}
	if err := h.configs.Save(ctx, config); err != nil {
		return fmt.Errorf("hub: failed to persist integration config: %w", err)
	}

	h.recordAudit(ctx, tc, config.SystemID, "register_integration", shared.AuditOutcomeSuccess, "")
	h.logger.Info("integration registered",
		zap.String("system_id", config.SystemID),
		zap.String("kind", config.Kind),
		zap.String("direction", string(config.Direction)),
	)
	return nil
}

// DeregisterIntegration removes a system's connector and persisted config
func (h *Hub) DeregisterIntegration(ctx context.Context, systemID string, tc shared.TenantContext) error {
	tc, err := h.authorize(ctx, tc, PermManageIntegrations)
	if err != nil {
		return err
	}
	if err := h.registry.Deregister(systemID); err != nil {
		return err
	}
	if err := h.configs.Delete(ctx, systemID); err != nil {
		return fmt.Errorf("hub: failed to delete integration config: %w", err)
	}
	h.recordAudit(ctx, tc, systemID, "deregister_integration", shared.AuditOutcomeSuccess, "")
	return nil
}

// ListIntegrations returns the configs of all registered systems
func (h *Hub) ListIntegrations() []*integration.IntegrationConfig {
	return h.registry.List()
}

// Integration returns the registered config for a system
func (h *Hub) Integration(systemID string) (*integration.IntegrationConfig, error) {
	return h.registry.Config(systemID)
}

// ValidateIntegration checks that a registered system is reachable
func (h *Hub) ValidateIntegration(ctx context.Context, systemID string, tc shared.TenantContext) (bool, error) {
	tc, err := h.authorize(ctx, tc, PermManageIntegrations)
	if err != nil {
		return false, err
	}
	connector, err := h.registry.Connector(systemID)
	if err != nil {
		return false, err
	}
	return connector.ValidateConnection(ctx, tc)
}

// Restore replays persisted integration configs into the runtime registry.
// Called once at startup, before the HTTP server accepts traffic.
func (h *Hub) Restore(ctx context.Context) error {
	configs, err := h.configs.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("hub: failed to load integration configs: %w", err)
	}
	for _, config := range configs {
		if err := h.register(config); err != nil {
			// A bad persisted config must not block the rest
			h.logger.Error("failed to restore integration",
				zap.String("system_id", config.SystemID),
				zap.Error(err),
			)
			continue
		}
	}
	h.logger.Info("integrations restored", zap.Int("count", len(configs)))
	return nil
}

// register performs the in-memory part of a registration: connector build,
// mapping rule, registry entry, rate-limit overrides.
func (h *Hub) register(config *integration.IntegrationConfig) error {
	connector, err := connectors.Build(config, h.logger)
	if err != nil {
		return err
	}
	rule, err := connectors.MappingRule(config.Kind, config.SystemID)
	if err != nil {
		return err
	}
	if err := h.mapper.RegisterRule(rule); err != nil {
		return err
	}
	if err := h.registry.Register(config, connector); err != nil {
		return err
	}
	if config.RateLimitPerMinute > 0 || config.RateLimitPerDay > 0 {
		h.limits.Set(config.SystemID, ratelimit.Limits{
			PerMinute: int64(config.RateLimitPerMinute),
			PerDay:    int64(config.RateLimitPerDay),
		})
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// authorize validates the tenant context, resolves permissions when absent,
// and checks the required key
func (h *Hub) authorize(ctx context.Context, tc shared.TenantContext, required string) (shared.TenantContext, error) {
	if err := tc.Validate(); err != nil {
		return tc, err
	}
	if tc.Permissions == nil && h.authority != nil {
		perms, err := h.authority.ResolvePermissions(ctx, tc)
		if err != nil {
			return tc, fmt.Errorf("hub: failed to resolve permissions: %w", err)
		}
		tc.Permissions = perms
	}
	if tc.Permissions != nil && !tc.Permissions.Has(required) {
		return tc, fmt.Errorf("%w: %s", ErrPermissionDenied, required)
	}
	return tc, nil
}

// recordAudit writes an audit entry. Best effort: failures are logged and
// never propagated to the operation being audited.
func (h *Hub) recordAudit(ctx context.Context, tc shared.TenantContext, systemID, operation string, outcome shared.AuditOutcome, errMsg string) {
	if h.audit == nil {
		return
	}
	entry := shared.NewAuditEntry(tc.TenantID, systemID, operation, outcome, errMsg)
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.Warn("failed to record audit entry",
			zap.String("operation", operation),
			zap.String("system_id", systemID),
			zap.Error(err),
		)
	}
}
