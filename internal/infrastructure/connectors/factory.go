package connectors

import (
	"fmt"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/mapping"
	"go.uber.org/zap"
)

// Connector kinds supported by the factory
const (
	KindTelephony = "telephony"
	KindCRM       = "crm"
)

// Build creates the connector implementation selected by the config's Kind
func Build(config *integration.IntegrationConfig, logger *zap.Logger) (integration.Connector, error) {
	switch config.Kind {
	case KindTelephony:
		return NewTelephonyConnector(config, logger)
	case KindCRM:
		return NewCRMConnector(config, logger)
	default:
		return nil, fmt.Errorf("%w: unknown connector kind %q", integration.ErrInvalidConfig, config.Kind)
	}
}

// MappingRule returns the field mapping rule for a connector kind. Every
// registration installs its kind's rule under its own system ID.
func MappingRule(kind, systemID string) (*mapping.Rule, error) {
	switch kind {
	case KindTelephony:
		return telephonyRule(systemID), nil
	case KindCRM:
		return crmRule(systemID), nil
	default:
		return nil, fmt.Errorf("%w: unknown connector kind %q", integration.ErrInvalidConfig, kind)
	}
}

// telephonyRule maps call-event payloads. Phone numbers are normalized to
// E.164 and dropped when they fail validation.
func telephonyRule(systemID string) *mapping.Rule {
	return &mapping.Rule{
		SystemID: systemID,
		FieldMappings: map[string]string{
			"event_type":       "event.type",
			"phone":            "call.from_number",
			"direction":        "call.direction",
			"duration_seconds": "call.duration",
			"agent_email":      "agent.email",
			"external_ref":     "call.id",
			"recording_url":    "call.recording_url",
			"notes":            "call.notes",
		},
		ReverseMappings: map[string]string{
			"event_type":       "event.type",
			"phone":            "call.to_number",
			"direction":        "call.direction",
			"duration_seconds": "call.duration",
			"agent_email":      "agent.email",
			"external_ref":     "call.id",
			"notes":            "call.notes",
		},
		Transformers: map[string]string{
			"phone":       mapping.TransformerPhoneE164,
			"agent_email": mapping.TransformerLowercase,
			"notes":       mapping.TransformerTrim,
		},
		Validators: map[string]string{
			"phone":        mapping.ValidatorE164,
			"external_ref": mapping.ValidatorNonEmpty,
		},
	}
}

// crmRule maps contact payloads
func crmRule(systemID string) *mapping.Rule {
	return &mapping.Rule{
		SystemID: systemID,
		FieldMappings: map[string]string{
			"event_type":   "event.type",
			"phone":        "contact.phone_number",
			"first_name":   "contact.first_name",
			"last_name":    "contact.last_name",
			"email":        "contact.email",
			"company":      "contact.company.name",
			"external_ref": "contact.id",
		},
		ReverseMappings: map[string]string{
			"event_type":   "event.type",
			"phone":        "contact.phone_number",
			"first_name":   "contact.first_name",
			"last_name":    "contact.last_name",
			"email":        "contact.email",
			"company":      "contact.company.name",
			"external_ref": "contact.id",
		},
		Transformers: map[string]string{
			"phone":      mapping.TransformerPhoneE164,
			"email":      mapping.TransformerLowercase,
			"first_name": mapping.TransformerTrim,
			"last_name":  mapping.TransformerTrim,
		},
		Validators: map[string]string{
			"phone": mapping.ValidatorE164,
			"email": mapping.ValidatorNonEmpty,
		},
	}
}
