package mapping

import (
	"errors"
	"fmt"
	"sync"
)

var ErrRuleNotFound = errors.New("mapping: no rule registered for system")

// Rule declares the field correspondence for one external system.
// FieldMappings maps canonical field names to dot-notation paths into the
// external payload; ReverseMappings is the outbound mirror. Each canonical
// field has at most one transformer and at most one validator.
type Rule struct {
	SystemID        string
	FieldMappings   map[string]string
	ReverseMappings map[string]string
	// Transformers maps canonical field -> built-in transformer name
	Transformers map[string]string
	// Validators maps canonical field -> built-in validator name
	Validators map[string]string
}

// Validate checks the rule references only known transformers and validators
func (r *Rule) Validate(transformers map[string]Transformer, validators map[string]Validator) error {
	if r.SystemID == "" {
		return errors.New("mapping: rule has no system ID")
	}
	for field, name := range r.Transformers {
		if _, ok := transformers[name]; !ok {
			return fmt.Errorf("%w: %q (field %q)", ErrTransformerNotFound, name, field)
		}
	}
	for field, name := range r.Validators {
		if _, ok := validators[name]; !ok {
			return fmt.Errorf("%w: %q (field %q)", ErrValidatorNotFound, name, field)
		}
	}
	return nil
}

// Result carries the mapped output plus per-field warnings for values that
// failed transformation or validation and were dropped.
type Result struct {
	Data     map[string]any
	Warnings []string
}

// Mapper transforms payloads between external and canonical shapes using
// per-system rules. Safe for concurrent use.
type Mapper struct {
	mu           sync.RWMutex
	rules        map[string]*Rule
	transformers map[string]Transformer
	validators   map[string]Validator
}

// NewMapper creates a mapper with the built-in transformer and validator tables
func NewMapper() *Mapper {
	return &Mapper{
		rules:        make(map[string]*Rule),
		transformers: BuiltinTransformers(),
		validators:   BuiltinValidators(),
	}
}

// RegisterRule stores the mapping rule for a system, replacing any previous rule
func (m *Mapper) RegisterRule(rule *Rule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := rule.Validate(m.transformers, m.validators); err != nil {
		return err
	}
	m.rules[rule.SystemID] = rule
	return nil
}

// Rule returns the registered rule for a system
func (m *Mapper) Rule(systemID string) (*Rule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rule, ok := m.rules[systemID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, systemID)
	}
	return rule, nil
}

// TransformInbound maps an external payload to canonical shape. Only fields
// present in the rule's FieldMappings are carried over; everything else is
// dropped. Absent paths are skipped silently, failed transforms or
// validations drop the field with a warning.
func (m *Mapper) TransformInbound(systemID string, external map[string]any) (*Result, error) {
	rule, err := m.Rule(systemID)
	if err != nil {
		return nil, err
	}
	return m.apply(rule, external, rule.FieldMappings, true), nil
}

// TransformOutbound maps a canonical payload to external shape using the
// rule's ReverseMappings. Canonical field names are the source keys and the
// reverse mapping supplies the destination path.
func (m *Mapper) TransformOutbound(systemID string, canonical map[string]any) (*Result, error) {
	rule, err := m.Rule(systemID)
	if err != nil {
		return nil, err
	}
	return m.apply(rule, canonical, rule.ReverseMappings, false), nil
}

// apply runs one mapping direction. For inbound, mappings are
// canonical field -> source path and output keys are canonical fields.
// For outbound, mappings are canonical field -> destination path and source
// keys are canonical fields.
func (m *Mapper) apply(rule *Rule, input map[string]any, mappings map[string]string, inbound bool) *Result {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := &Result{Data: make(map[string]any)}
	for field, path := range mappings {
		var value any
		var present bool
		if inbound {
			value, present = GetPath(input, path)
		} else {
			value, present = input[field]
		}
		if !present {
			continue
		}

		if name, ok := rule.Transformers[field]; ok {
			transformed, err := m.transformers[name](value)
			if err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("field %q dropped: transformer %s: %v", field, name, err))
				continue
			}
			value = transformed
		}

		if name, ok := rule.Validators[field]; ok {
			if err := m.validators[name](value); err != nil {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("field %q dropped: validator %s: %v", field, name, err))
				continue
			}
		}

		if inbound {
			result.Data[field] = value
		} else {
			SetPath(result.Data, path, value)
		}
	}
	return result
}
