package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	ErrTransformerNotFound = errors.New("mapping: transformer not found")
	ErrValidatorNotFound   = errors.New("mapping: validator not found")
	ErrNotAString          = errors.New("mapping: value is not a string")
)

// Transformer converts a field value during mapping
type Transformer func(value any) (any, error)

// Validator checks a transformed field value. A validation failure drops the
// field from the output; it never aborts the whole transform.
type Validator func(value any) error

// Built-in transformer and validator names referenced by mapping rules
const (
	TransformerPhoneE164 = "phone_e164"
	TransformerLowercase = "lowercase"
	TransformerTrim      = "trim"

	ValidatorE164     = "e164"
	ValidatorNonEmpty = "non_empty"
)

// e164Pattern matches "+" followed by a 1-9 digit and 1-14 further digits
var e164Pattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)

var nonDigits = regexp.MustCompile(`\D`)

// NormalizePhoneE164 standardizes a phone number to E.164:
// a 10-digit number is assumed US/Canada, an 11-digit number starting with 1
// gets a plus, a leading zero is stripped (trunk prefix), and anything else
// is treated as already international.
func NormalizePhoneE164(raw string) string {
	digits := nonDigits.ReplaceAllString(raw, "")
	switch {
	case digits == "":
		return ""
	// Trunk zero wins over the 10-digit rule: "0445512345" is a national
	// number with its trunk prefix, not a US/Canada number.
	case strings.HasPrefix(digits, "0"):
		return "+" + digits[1:]
	case len(digits) == 10:
		return "+1" + digits
	case len(digits) == 11 && strings.HasPrefix(digits, "1"):
		return "+" + digits
	default:
		return "+" + digits
	}
}

// BuiltinTransformers returns the transformer table shared by all mappers
func BuiltinTransformers() map[string]Transformer {
	return map[string]Transformer{
		TransformerPhoneE164: func(value any) (any, error) {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrNotAString, value)
			}
			return NormalizePhoneE164(s), nil
		},
		TransformerLowercase: func(value any) (any, error) {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrNotAString, value)
			}
			return strings.ToLower(s), nil
		},
		TransformerTrim: func(value any) (any, error) {
			s, ok := value.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %T", ErrNotAString, value)
			}
			return strings.TrimSpace(s), nil
		},
	}
}

// BuiltinValidators returns the validator table shared by all mappers
func BuiltinValidators() map[string]Validator {
	return map[string]Validator{
		ValidatorE164: func(value any) error {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %T", ErrNotAString, value)
			}
			if !e164Pattern.MatchString(s) {
				return fmt.Errorf("mapping: %q is not a valid E.164 number", s)
			}
			return nil
		},
		ValidatorNonEmpty: func(value any) error {
			s, ok := value.(string)
			if !ok {
				return fmt.Errorf("%w: %T", ErrNotAString, value)
			}
			if strings.TrimSpace(s) == "" {
				return errors.New("mapping: value is empty")
			}
			return nil
		},
	}
}
