// Package crypto seals local cache contents at rest with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Sizes in bytes. Sealed blobs are prefixed with their nonce.
const (
	NonceSize = 12
	KeySize   = 32
)

var (
	ErrInvalidKeySize     = fmt.Errorf("crypto: key must be %d bytes", KeySize)
	ErrCiphertextTooShort = errors.New("crypto: sealed blob shorter than its nonce")
)

// Sealer encrypts and authenticates blobs with one key. It is safe for
// concurrent use.
type Sealer struct {
	aead cipher.AEAD
}

// NewSealer builds a Sealer from a 32-byte key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Sealer{aead: gcm}, nil
}

// Seal returns [nonce(12)] + [ciphertext]. label is bound as additional
// data, so a blob sealed under one cache key will not open under another.
func (s *Sealer) Seal(plaintext []byte, label string) ([]byte, error) {
	nonce := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, []byte(label)), nil
}

// Open reverses Seal.
func (s *Sealer) Open(ciphertext []byte, label string) ([]byte, error) {
	if len(ciphertext) < NonceSize {
		return nil, ErrCiphertextTooShort
	}
	nonce, data := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := s.aead.Open(nil, nonce, data, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

// ParseKey decodes a 64-character hex string into a 32-byte key. Generate
// one with:
//
//	openssl rand -hex 32
func ParseKey(rawHex string) ([]byte, error) {
	raw := strings.TrimSpace(rawHex)
	if raw == "" {
		return nil, fmt.Errorf("cache key is empty")
	}
	key, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid hex in cache key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("cache key must be %d bytes (%d hex chars), got %d bytes",
			KeySize, KeySize*2, len(key))
	}
	return key, nil
}
