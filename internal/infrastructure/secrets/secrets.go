package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/crm/hub/internal/domain/shared"
)

// ErrSecretNotFound is returned when no secret is configured for a system
var ErrSecretNotFound = errors.New("secrets: secret not found")

// StaticStore resolves secrets from a fixed map loaded at startup. Used in
// development and tests; production wires the env store or an external
// manager behind the same interface.
type StaticStore struct {
	secrets map[string]string
}

// NewStaticStore creates a store over the given system-to-secret map
func NewStaticStore(secrets map[string]string) *StaticStore {
	if secrets == nil {
		secrets = make(map[string]string)
	}
	return &StaticStore{secrets: secrets}
}

// GetSecret returns the signing secret for the given external system
func (s *StaticStore) GetSecret(ctx context.Context, systemID string) (string, error) {
	secret, ok := s.secrets[systemID]
	if !ok || secret == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, systemID)
	}
	return secret, nil
}

// EnvStore resolves secrets from environment variables. The variable name is
// the system ID upper-cased with non-alphanumerics replaced by underscores,
// prefixed with HUB_WEBHOOK_SECRET_ (e.g. HUB_WEBHOOK_SECRET_DIALFIRE).
type EnvStore struct {
	prefix string
}

// NewEnvStore creates an env-backed store with the default prefix
func NewEnvStore() *EnvStore {
	return &EnvStore{prefix: "HUB_WEBHOOK_SECRET_"}
}

// GetSecret returns the signing secret for the given external system
func (s *EnvStore) GetSecret(ctx context.Context, systemID string) (string, error) {
	secret := os.Getenv(s.prefix + envKey(systemID))
	if secret == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, systemID)
	}
	return secret, nil
}

func envKey(systemID string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(systemID) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

// ChainStore tries each store in order and returns the first hit
type ChainStore struct {
	stores []shared.SecretStore
}

// NewChainStore creates a store that consults the given stores in order
func NewChainStore(stores ...shared.SecretStore) *ChainStore {
	return &ChainStore{stores: stores}
}

// GetSecret returns the first secret found across the chained stores
func (s *ChainStore) GetSecret(ctx context.Context, systemID string) (string, error) {
	for _, store := range s.stores {
		secret, err := store.GetSecret(ctx, systemID)
		if err == nil {
			return secret, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, systemID)
}

var (
	_ shared.SecretStore = (*StaticStore)(nil)
	_ shared.SecretStore = (*EnvStore)(nil)
	_ shared.SecretStore = (*ChainStore)(nil)
)
