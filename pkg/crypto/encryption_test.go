package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestAESGCM_SealOpen(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)

	ct, nonce, err := s.Seal([]byte(`{"number":"4111111111111111"}`))
	require.NoError(t, err)
	assert.NotContains(t, ct, "4111")

	plain, err := s.Open(ct, nonce)
	require.NoError(t, err)
	assert.Equal(t, `{"number":"4111111111111111"}`, string(plain))

	ct2, nonce2, err := s.Seal([]byte(`{"number":"4111111111111111"}`))
	require.NoError(t, err)
	assert.NotEqual(t, nonce, nonce2)
	assert.NotEqual(t, ct, ct2)
}

func TestAESGCM_Open_Rejects(t *testing.T) {
	s, err := NewAESGCM(testKey)
	require.NoError(t, err)
	ct, nonce, err := s.Seal([]byte("secret"))
	require.NoError(t, err)

	other, err := NewAESGCM(strings.Repeat("ab", 32))
	require.NoError(t, err)
	_, err = other.Open(ct, nonce)
	assert.ErrorIs(t, err, ErrAuthenticationTag)

	_, err = s.Open("not base64!", nonce)
	assert.ErrorIs(t, err, ErrMalformedSealed)

	_, err = s.Open(ct, "AAAA")
	assert.ErrorIs(t, err, ErrMalformedSealed)
}

func TestNewAESGCM_KeyValidation(t *testing.T) {
	_, err := NewAESGCM("zz")
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = NewAESGCM("0011")
	assert.ErrorIs(t, err, ErrInvalidKey)
}
