package signature

import (
	"context"
	"errors"
	"testing"

	"github.com/crm/hub/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSecretStore struct {
	secrets map[string]string
}

func (s *stubSecretStore) GetSecret(ctx context.Context, systemID string) (string, error) {
	secret, ok := s.secrets[systemID]
	if !ok {
		return "", errors.New("no secret")
	}
	return secret, nil
}

func newValidator() *Validator {
	return NewValidator(&stubSecretStore{secrets: map[string]string{
		"dialfire": "test-secret",
	}})
}

func TestCanonicalize_Deterministic(t *testing.T) {
	a := []byte(`{"b": 2, "a": 1}`)
	b := []byte(`{
		"a": 1,
		"b": 2
	}`)

	ca, err := Canonicalize(a)
	require.NoError(t, err)
	cb, err := Canonicalize(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb)
	assert.Equal(t, `{"a":1,"b":2}`, string(ca))
}

func TestCanonicalize_RejectsInvalidJSON(t *testing.T) {
	_, err := Canonicalize([]byte(`{"a":`))
	assert.Error(t, err)
}

func TestSignHMACSHA256_Deterministic(t *testing.T) {
	payload := []byte(`{"event":"call.ended","id":42}`)

	first, err := SignHMACSHA256(payload, "test-secret")
	require.NoError(t, err)
	second, err := SignHMACSHA256([]byte(`{"id":42,"event":"call.ended"}`), "test-secret")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Contains(t, first, "sha256=")
}

func TestSignHMACSHA256_MutationChangesSignature(t *testing.T) {
	original, err := SignHMACSHA256([]byte(`{"id":42}`), "test-secret")
	require.NoError(t, err)
	mutated, err := SignHMACSHA256([]byte(`{"id":43}`), "test-secret")
	require.NoError(t, err)

	assert.NotEqual(t, original, mutated)
}

func TestValidator_Verify_HMAC(t *testing.T) {
	v := newValidator()
	ctx := context.Background()
	payload := []byte(`{"event":"call.ended"}`)

	sig, err := SignHMACSHA256(payload, "test-secret")
	require.NoError(t, err)

	assert.NoError(t, v.Verify(ctx, integration.SignatureSchemeHMACSHA256, "dialfire", payload, sig))
}

func TestValidator_Verify_Rejections(t *testing.T) {
	v := newValidator()
	ctx := context.Background()
	payload := []byte(`{"event":"call.ended"}`)

	sig, err := SignHMACSHA256(payload, "test-secret")
	require.NoError(t, err)

	tests := []struct {
		name     string
		scheme   integration.SignatureScheme
		systemID string
		payload  []byte
		header   string
		wantErr  error
	}{
		{"missing header", integration.SignatureSchemeHMACSHA256, "dialfire", payload, "", ErrMissingSignature},
		{"wrong secret system", integration.SignatureSchemeHMACSHA256, "unknown", payload, sig, ErrSecretUnavailable},
		{"tampered payload", integration.SignatureSchemeHMACSHA256, "dialfire", []byte(`{"event":"call.started"}`), sig, ErrMismatch},
		{"malformed header", integration.SignatureSchemeHMACSHA256, "dialfire", payload, "md5=abcdef", ErrMismatch},
		{"garbage hex", integration.SignatureSchemeHMACSHA256, "dialfire", payload, "sha256=zzzz", ErrMismatch},
		{"unknown scheme", integration.SignatureScheme("PLAINTEXT"), "dialfire", payload, sig, ErrUnsupportedScheme},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Verify(ctx, tt.scheme, tt.systemID, tt.payload, tt.header)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestValidator_Verify_Token(t *testing.T) {
	v := newValidator()
	ctx := context.Background()

	assert.NoError(t, v.Verify(ctx, integration.SignatureSchemeToken, "dialfire", nil, "test-secret"))
	assert.ErrorIs(t, v.Verify(ctx, integration.SignatureSchemeToken, "dialfire", nil, "wrong"), ErrMismatch)
}
