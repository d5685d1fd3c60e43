package models

import (
	"encoding/json"
	"time"

	"github.com/crm/hub/internal/domain/integration"
)

// IntegrationConfigModel is the persistence model for registered integrations.
// Credentials are stored as provided; encryption at rest is the database's
// responsibility.
type IntegrationConfigModel struct {
	SystemID           string                      `gorm:"type:varchar(100);primary_key"`
	Name               string                      `gorm:"type:varchar(255);not null"`
	Kind               string                      `gorm:"type:varchar(50);not null;index"`
	BaseURL            string                      `gorm:"type:varchar(2048)"`
	Direction          integration.SyncDirection   `gorm:"type:varchar(20);not null"`
	SignatureScheme    integration.SignatureScheme `gorm:"type:varchar(20);not null"`
	CredentialsJSON    string                      `gorm:"type:jsonb;column:credentials"`
	RateLimitPerMinute int                         `gorm:"not null;default:0"`
	RateLimitPerDay    int                         `gorm:"not null;default:0"`
	CreatedAt          time.Time                   `gorm:"not null"`
	UpdatedAt          time.Time                   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IntegrationConfigModel) TableName() string {
	return "integration_configs"
}

// ToDomain converts the persistence model to a domain IntegrationConfig.
func (m *IntegrationConfigModel) ToDomain() *integration.IntegrationConfig {
	cfg := &integration.IntegrationConfig{
		SystemID:           m.SystemID,
		Name:               m.Name,
		Kind:               m.Kind,
		BaseURL:            m.BaseURL,
		Direction:          m.Direction,
		SignatureScheme:    m.SignatureScheme,
		Credentials:        make(map[string]string),
		RateLimitPerMinute: m.RateLimitPerMinute,
		RateLimitPerDay:    m.RateLimitPerDay,
	}

	if m.CredentialsJSON != "" {
		var creds map[string]string
		if err := json.Unmarshal([]byte(m.CredentialsJSON), &creds); err == nil {
			cfg.Credentials = creds
		}
	}

	return cfg
}

// FromDomain populates the persistence model from a domain IntegrationConfig.
func (m *IntegrationConfigModel) FromDomain(cfg *integration.IntegrationConfig) {
	m.SystemID = cfg.SystemID
	m.Name = cfg.Name
	m.Kind = cfg.Kind
	m.BaseURL = cfg.BaseURL
	m.Direction = cfg.Direction
	m.SignatureScheme = cfg.SignatureScheme
	m.RateLimitPerMinute = cfg.RateLimitPerMinute
	m.RateLimitPerDay = cfg.RateLimitPerDay

	if len(cfg.Credentials) > 0 {
		if jsonBytes, err := json.Marshal(cfg.Credentials); err == nil {
			m.CredentialsJSON = string(jsonBytes)
		}
	} else {
		m.CredentialsJSON = "{}"
	}
}

// IntegrationConfigModelFromDomain creates a new persistence model from a domain IntegrationConfig.
func IntegrationConfigModelFromDomain(cfg *integration.IntegrationConfig) *IntegrationConfigModel {
	m := &IntegrationConfigModel{}
	m.FromDomain(cfg)
	return m
}
