package integration

import (
	"fmt"
	"sync"
)

// Registry holds one connector per registered system. It is owned by the hub
// instance and passed by reference to subcomponents; it is never a
// process-wide singleton.
type Registry struct {
	mu         sync.RWMutex
	connectors map[string]Connector
	configs    map[string]*IntegrationConfig
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connectors: make(map[string]Connector),
		configs:    make(map[string]*IntegrationConfig),
	}
}

// Register stores a connector and its config under the config's system ID.
// Re-registering an existing system replaces the previous connector.
func (r *Registry) Register(config *IntegrationConfig, connector Connector) error {
	if err := config.Validate(); err != nil {
		return err
	}
	if connector == nil {
		return fmt.Errorf("%w: connector is nil", ErrInvalidConfig)
	}
	if connector.SystemID() != config.SystemID {
		return fmt.Errorf("%w: connector system %q does not match config system %q",
			ErrInvalidConfig, connector.SystemID(), config.SystemID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.connectors[config.SystemID] = connector
	r.configs[config.SystemID] = config
	return nil
}

// Deregister removes a system's connector and config
func (r *Registry) Deregister(systemID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.connectors[systemID]; !ok {
		return fmt.Errorf("%w: %s", ErrSystemNotRegistered, systemID)
	}
	delete(r.connectors, systemID)
	delete(r.configs, systemID)
	return nil
}

// Connector returns the connector registered for the system ID
func (r *Registry) Connector(systemID string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[systemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSystemNotRegistered, systemID)
	}
	return c, nil
}

// Config returns the registered config for the system ID
func (r *Registry) Config(systemID string) (*IntegrationConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[systemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSystemNotRegistered, systemID)
	}
	return cfg, nil
}

// List returns the configs of all registered systems
func (r *Registry) List() []*IntegrationConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	configs := make([]*IntegrationConfig, 0, len(r.configs))
	for _, cfg := range r.configs {
		configs = append(configs, cfg)
	}
	return configs
}
