// Package crypto seals payment method details at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidKey        = errors.New("encryption key must be 32 bytes (64 hex chars)")
	ErrMalformedSealed   = errors.New("sealed value is not valid base64")
	ErrAuthenticationTag = errors.New("sealed value failed authentication")
)

// Sealer encrypts and decrypts small payloads. The nonce is returned
// separately so it can live in its own column.
type Sealer interface {
	Seal(plaintext []byte) (ciphertext, nonce string, err error)
	Open(ciphertext, nonce string) ([]byte, error)
}

var _ Sealer = (*AESGCM)(nil)

type AESGCM struct {
	aead cipher.AEAD
	rand io.Reader
}

// NewAESGCM builds a sealer from a hex-encoded 256-bit key.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != 32 {
		return nil, ErrInvalidKey
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &AESGCM{aead: aead, rand: rand.Reader}, nil
}

// Seal returns base64 ciphertext and a fresh base64 nonce.
func (s *AESGCM) Seal(plaintext []byte) (string, string, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", "", fmt.Errorf("failed to read nonce: %w", err)
	}
	sealed := s.aead.Seal(nil, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), base64.StdEncoding.EncodeToString(nonce), nil
}

func (s *AESGCM) Open(ciphertext, nonce string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, ErrMalformedSealed
	}
	iv, err := base64.StdEncoding.DecodeString(nonce)
	if err != nil || len(iv) != s.aead.NonceSize() {
		return nil, ErrMalformedSealed
	}
	plain, err := s.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrAuthenticationTag
	}
	return plain, nil
}
