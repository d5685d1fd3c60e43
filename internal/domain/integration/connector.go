package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crm/hub/internal/domain/shared"
)

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

var (
	ErrSystemNotRegistered    = errors.New("integration: system not registered")
	ErrSystemAlreadyExists    = errors.New("integration: system already registered")
	ErrInvalidConfig          = errors.New("integration: invalid integration config")
	ErrDirectionNotSupported  = errors.New("integration: sync direction not supported")
	ErrAuthenticationFailed   = errors.New("integration: authentication failed")
	ErrConnectionInvalid      = errors.New("integration: connection validation failed")
	ErrMappingRuleNotFound    = errors.New("integration: mapping rule not found")
	ErrUnknownSignatureScheme = errors.New("integration: unknown signature scheme")
)

// ---------------------------------------------------------------------------
// SyncDirection
// ---------------------------------------------------------------------------

// SyncDirection declares which way data may flow for an integration
type SyncDirection string

const (
	// SyncDirectionInbound allows external -> platform flow only
	SyncDirectionInbound SyncDirection = "INBOUND"
	// SyncDirectionOutbound allows platform -> external flow only
	SyncDirectionOutbound SyncDirection = "OUTBOUND"
	// SyncDirectionBidirectional allows both flows
	SyncDirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

// IsValid returns true if the direction is a known value
func (d SyncDirection) IsValid() bool {
	switch d {
	case SyncDirectionInbound, SyncDirectionOutbound, SyncDirectionBidirectional:
		return true
	default:
		return false
	}
}

// AllowsInbound returns true if inbound sync is permitted
func (d SyncDirection) AllowsInbound() bool {
	return d == SyncDirectionInbound || d == SyncDirectionBidirectional
}

// AllowsOutbound returns true if outbound sync is permitted
func (d SyncDirection) AllowsOutbound() bool {
	return d == SyncDirectionOutbound || d == SyncDirectionBidirectional
}

// ---------------------------------------------------------------------------
// SignatureScheme
// ---------------------------------------------------------------------------

// SignatureScheme identifies how inbound webhooks from a system are signed.
// The set is closed: anything outside it is rejected, never passed through.
type SignatureScheme string

const (
	// SignatureSchemeHMACSHA256 verifies an HMAC-SHA256 over the canonical
	// payload bytes, supplied as "sha256=<hex>" in the signature header
	SignatureSchemeHMACSHA256 SignatureScheme = "HMAC_SHA256"
	// SignatureSchemeToken compares a static shared token from the header
	SignatureSchemeToken SignatureScheme = "TOKEN"
)

// IsValid returns true if the scheme is a supported value
func (s SignatureScheme) IsValid() bool {
	switch s {
	case SignatureSchemeHMACSHA256, SignatureSchemeToken:
		return true
	default:
		return false
	}
}

// ---------------------------------------------------------------------------
// IntegrationConfig
// ---------------------------------------------------------------------------

// IntegrationConfig identifies an external system and how the hub talks to
// it. Immutable after registration; owned by the registry.
type IntegrationConfig struct {
	// SystemID uniquely identifies the external system (e.g. "dialfire")
	SystemID string
	// Name is a human-readable label
	Name string
	// Kind selects the connector implementation (e.g. "telephony", "crm")
	Kind string
	// BaseURL is the system's API endpoint
	BaseURL string
	// Direction declares the supported sync directions
	Direction SyncDirection
	// SignatureScheme selects the webhook verification scheme
	SignatureScheme SignatureScheme
	// Credentials holds connector-specific credential material
	// (API keys, account IDs). Never logged.
	Credentials map[string]string
	// RateLimitPerMinute overrides the default per-minute admission limit
	// for this system. Zero means use the configured default.
	RateLimitPerMinute int
	// RateLimitPerDay overrides the default per-day admission limit
	RateLimitPerDay int
}

// Validate checks the config is registrable
func (c *IntegrationConfig) Validate() error {
	if c.SystemID == "" {
		return fmt.Errorf("%w: system ID is required", ErrInvalidConfig)
	}
	if c.Kind == "" {
		return fmt.Errorf("%w: connector kind is required", ErrInvalidConfig)
	}
	if !c.Direction.IsValid() {
		return fmt.Errorf("%w: unknown sync direction %q", ErrInvalidConfig, c.Direction)
	}
	if !c.SignatureScheme.IsValid() {
		return fmt.Errorf("%w: unknown signature scheme %q", ErrInvalidConfig, c.SignatureScheme)
	}
	if c.RateLimitPerMinute < 0 || c.RateLimitPerDay < 0 {
		return fmt.Errorf("%w: rate limits must not be negative", ErrInvalidConfig)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// SyncResult is returned by every connector operation. Expected business
// failures (unknown event type, rejected record) are reported with
// Success=false and Error set; Go errors are reserved for contract
// violations and transport faults.
type SyncResult struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// OK returns a successful result carrying data
func OK(data map[string]any) *SyncResult {
	return &SyncResult{Success: true, Data: data}
}

// Fail returns a failed result with a formatted business error
func Fail(format string, args ...any) *SyncResult {
	return &SyncResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// AuthResult is returned by Connector.Authenticate
type AuthResult struct {
	Authenticated bool
	// Token is the session credential obtained, if any
	Token string
	// ExpiresAt is when the credential expires (zero if non-expiring)
	ExpiresAt time.Time
}

// ---------------------------------------------------------------------------
// Connector
// ---------------------------------------------------------------------------

// Connector is the per-external-system capability set. Implementations must
// be safe for concurrent use across tenants; any per-tenant serialization is
// the connector's own responsibility.
type Connector interface {
	// SystemID returns the system this connector was registered under
	SystemID() string

	// Authenticate establishes or refreshes credentials for the tenant
	Authenticate(ctx context.Context, tc shared.TenantContext) (*AuthResult, error)

	// SyncInbound ingests canonical-shaped data that originated from the
	// external system. Unknown sub-event types are reported via the result,
	// not as errors.
	SyncInbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*SyncResult, error)

	// SyncOutbound pushes canonical data out to the external system
	SyncOutbound(ctx context.Context, data map[string]any, tc shared.TenantContext) (*SyncResult, error)

	// ValidateConnection checks the integration is reachable and usable
	ValidateConnection(ctx context.Context, tc shared.TenantContext) (bool, error)
}
