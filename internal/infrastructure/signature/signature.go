// Package signature verifies inbound webhook authenticity and signs
// outbound deliveries. Schemes form a closed set; anything unrecognized is
// rejected, never passed through.
package signature

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/crm/hub/internal/domain/shared"
)

var (
	ErrMissingSignature  = errors.New("signature: missing signature header")
	ErrUnsupportedScheme = errors.New("signature: unsupported signature scheme")
	ErrMismatch          = errors.New("signature: signature mismatch")
	ErrSecretUnavailable = errors.New("signature: secret unavailable")
)

// HeaderName is the signature header on inbound and outbound webhook calls
const HeaderName = "X-Webhook-Signature"

const sha256Prefix = "sha256="

// Canonicalize serializes a payload with deterministic key ordering and no
// incidental whitespace. Raw webhook bodies are canonicalized before
// signing so that semantically equal payloads verify identically.
func Canonicalize(payload []byte) ([]byte, error) {
	var decoded any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("signature: payload is not valid JSON: %w", err)
	}
	// encoding/json sorts map keys and emits compact output
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return nil, fmt.Errorf("signature: failed to canonicalize payload: %w", err)
	}
	return canonical, nil
}

// SignHMACSHA256 computes the "sha256=<hex>" signature over the canonical
// form of the payload
func SignHMACSHA256(payload []byte, secret string) (string, error) {
	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)
	return sha256Prefix + hex.EncodeToString(mac.Sum(nil)), nil
}

// Validator verifies inbound webhook signatures. Secrets come from the
// external secret store; the validator owns nothing but the dispatch table.
type Validator struct {
	secrets shared.SecretStore
}

// NewValidator creates a validator backed by the given secret store
func NewValidator(secrets shared.SecretStore) *Validator {
	return &Validator{secrets: secrets}
}

// Verify checks the header-supplied signature for the given scheme. A nil
// return means the payload is authentic; every other outcome is one of the
// package-level errors. Verification never mutates state.
func (v *Validator) Verify(ctx context.Context, scheme integration.SignatureScheme, systemID string, payload []byte, header string) error {
	if header == "" {
		return ErrMissingSignature
	}

	secret, err := v.secrets.GetSecret(ctx, systemID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSecretUnavailable, systemID)
	}

	switch scheme {
	case integration.SignatureSchemeHMACSHA256:
		return verifyHMAC(payload, secret, header)
	case integration.SignatureSchemeToken:
		return verifyToken(secret, header)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

func verifyHMAC(payload []byte, secret, header string) error {
	if !strings.HasPrefix(header, sha256Prefix) {
		return ErrMismatch
	}
	supplied, err := hex.DecodeString(strings.TrimPrefix(header, sha256Prefix))
	if err != nil {
		return ErrMismatch
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return ErrMismatch
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(canonical)

	if !hmac.Equal(mac.Sum(nil), supplied) {
		return ErrMismatch
	}
	return nil
}

func verifyToken(secret, header string) error {
	if subtle.ConstantTimeCompare([]byte(secret), []byte(header)) != 1 {
		return ErrMismatch
	}
	return nil
}
