package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Path Tests
// ---------------------------------------------------------------------------

func TestGetPath(t *testing.T) {
	payload := map[string]any{
		"call": map[string]any{
			"from": map[string]any{
				"number": "(555) 123-4567",
			},
			"duration": 42,
		},
	}

	tests := []struct {
		name     string
		path     string
		expected any
		found    bool
	}{
		{"nested value", "call.from.number", "(555) 123-4567", true},
		{"intermediate value", "call.duration", 42, true},
		{"absent leaf", "call.from.name", nil, false},
		{"absent branch", "message.body", nil, false},
		{"path through scalar", "call.duration.seconds", nil, false},
		{"empty path", "", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, found := GetPath(payload, tt.path)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, tt.expected, value)
		})
	}
}

func TestGetPath_DoesNotMutate(t *testing.T) {
	payload := map[string]any{"a": map[string]any{"b": 1}}
	_, _ = GetPath(payload, "a.b.c")
	_, _ = GetPath(payload, "x.y")
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, payload)
}

func TestSetPath(t *testing.T) {
	out := make(map[string]any)
	SetPath(out, "contact.phone", "+15551234567")
	SetPath(out, "contact.name", "Ada")
	SetPath(out, "kind", "interaction")

	assert.Equal(t, map[string]any{
		"contact": map[string]any{
			"phone": "+15551234567",
			"name":  "Ada",
		},
		"kind": "interaction",
	}, out)
}

func TestSetPath_ReplacesScalarIntermediate(t *testing.T) {
	out := map[string]any{"a": 1}
	SetPath(out, "a.b", 2)
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 2}}, out)
}

// ---------------------------------------------------------------------------
// Phone Transformer Tests
// ---------------------------------------------------------------------------

func TestNormalizePhoneE164(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"(555) 123-4567", "+15551234567"},
		{"15551234567", "+15551234567"},
		{"0445512345", "+445512345"},
		{"+445512345", "+445512345"},
		{"555.123.4567", "+15551234567"},
		{"+86 138 0013 8000", "+8613800138000"},
		{"", ""},
		{"ext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizePhoneE164(tt.input))
		})
	}
}

func TestBuiltinValidator_E164(t *testing.T) {
	validate := BuiltinValidators()[ValidatorE164]

	assert.NoError(t, validate("+15551234567"))
	assert.NoError(t, validate("+445512345"))
	assert.Error(t, validate("15551234567"))
	assert.Error(t, validate("+05551234567"))
	assert.Error(t, validate("+1"))
	assert.Error(t, validate(""))
	assert.Error(t, validate(12345))
}

// ---------------------------------------------------------------------------
// Mapper Tests
// ---------------------------------------------------------------------------

func callRule() *Rule {
	return &Rule{
		SystemID: "dialfire",
		FieldMappings: map[string]string{
			"phone_number": "call.from.number",
			"duration":     "call.duration",
			"direction":    "call.direction",
		},
		ReverseMappings: map[string]string{
			"phone_number": "call.from.number",
			"duration":     "call.duration",
			"direction":    "call.direction",
		},
		Transformers: map[string]string{
			"phone_number": TransformerPhoneE164,
		},
		Validators: map[string]string{
			"phone_number": ValidatorE164,
		},
	}
}

func TestMapper_TransformInbound(t *testing.T) {
	mapper := NewMapper()
	require.NoError(t, mapper.RegisterRule(callRule()))

	external := map[string]any{
		"call": map[string]any{
			"from":      map[string]any{"number": "(555) 123-4567"},
			"duration":  180,
			"direction": "inbound",
		},
		"internal_id": "should-be-dropped",
	}

	result, err := mapper.TransformInbound("dialfire", external)
	require.NoError(t, err)

	assert.Equal(t, "+15551234567", result.Data["phone_number"])
	assert.Equal(t, 180, result.Data["duration"])
	assert.Equal(t, "inbound", result.Data["direction"])
	assert.NotContains(t, result.Data, "internal_id")
	assert.Empty(t, result.Warnings)
}

func TestMapper_TransformInbound_AbsentPathIsSkipped(t *testing.T) {
	mapper := NewMapper()
	require.NoError(t, mapper.RegisterRule(callRule()))

	result, err := mapper.TransformInbound("dialfire", map[string]any{
		"call": map[string]any{"duration": 30},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"duration": 30}, result.Data)
	assert.Empty(t, result.Warnings)
}

func TestMapper_TransformInbound_ValidationDropsField(t *testing.T) {
	mapper := NewMapper()
	require.NoError(t, mapper.RegisterRule(callRule()))

	result, err := mapper.TransformInbound("dialfire", map[string]any{
		"call": map[string]any{
			"from":     map[string]any{"number": "not a number"},
			"duration": 30,
		},
	})
	require.NoError(t, err)

	assert.NotContains(t, result.Data, "phone_number")
	assert.Equal(t, 30, result.Data["duration"])
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], "phone_number")
}

func TestMapper_TransformInbound_DoesNotMutateInput(t *testing.T) {
	mapper := NewMapper()
	require.NoError(t, mapper.RegisterRule(callRule()))

	external := map[string]any{
		"call": map[string]any{
			"from": map[string]any{"number": "(555) 123-4567"},
		},
	}

	_, err := mapper.TransformInbound("dialfire", external)
	require.NoError(t, err)

	assert.Equal(t, "(555) 123-4567",
		external["call"].(map[string]any)["from"].(map[string]any)["number"])
}

func TestMapper_RoundTrip(t *testing.T) {
	mapper := NewMapper()
	require.NoError(t, mapper.RegisterRule(callRule()))

	external := map[string]any{
		"call": map[string]any{
			"from":      map[string]any{"number": "+15551234567"},
			"duration":  180,
			"direction": "inbound",
		},
	}

	inbound, err := mapper.TransformInbound("dialfire", external)
	require.NoError(t, err)

	outbound, err := mapper.TransformOutbound("dialfire", inbound.Data)
	require.NoError(t, err)

	assert.Equal(t, external, outbound.Data)
}

func TestMapper_UnknownSystem(t *testing.T) {
	mapper := NewMapper()
	_, err := mapper.TransformInbound("nonexistent", map[string]any{})
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestMapper_RegisterRule_UnknownTransformer(t *testing.T) {
	mapper := NewMapper()
	rule := callRule()
	rule.Transformers["phone_number"] = "reverse_string"
	assert.ErrorIs(t, mapper.RegisterRule(rule), ErrTransformerNotFound)
}

func TestMapper_RegisterRule_UnknownValidator(t *testing.T) {
	mapper := NewMapper()
	rule := callRule()
	rule.Validators["phone_number"] = "luhn"
	assert.ErrorIs(t, mapper.RegisterRule(rule), ErrValidatorNotFound)
}
