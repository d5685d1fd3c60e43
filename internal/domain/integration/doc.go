// Package integration defines the connector contract for external systems
// and the registry that holds one connector per registered system.
//
// This package follows the Ports & Adapters pattern: the Connector interface
// is defined here in the domain layer, and concrete implementations
// (telephony providers, CRMs) live in the infrastructure layer.
package integration
