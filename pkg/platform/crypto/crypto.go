// Package crypto implements the symmetric encryption collaborator used for
// field-level audit envelopes. Keys are derived from a single master secret
// with HKDF so the encryption key and the audit HMAC key never coincide.
package crypto

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Derivation labels. Changing a label rotates the derived key.
const (
	LabelFieldEncryption = "veristat/field-encryption/v1"
	LabelAuditIntegrity  = "veristat/audit-integrity/v1"
)

// DeriveKey derives a subkey of the given size from the master secret using
// HKDF-SHA256 with the label as info.
func DeriveKey(master []byte, label string, size int) ([]byte, error) {
	if len(master) == 0 {
		return nil, errors.New("master key is empty")
	}
	key := make([]byte, size)
	r := hkdf.New(sha256.New, master, nil, []byte(label))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key %q: %w", label, err)
	}
	return key, nil
}

// Service encrypts and decrypts opaque byte payloads with
// XChaCha20-Poly1305. The nonce is generated per call and prepended to the
// ciphertext.
type Service struct {
	aead cipher.AEAD
}

// NewService derives the field-encryption key from the master secret and
// builds the AEAD.
func NewService(master []byte) (*Service, error) {
	key, err := DeriveKey(master, LabelFieldEncryption, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("init aead: %w", err)
	}
	return &Service{aead: aead}, nil
}

func (s *Service) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (s *Service) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < s.aead.NonceSize() {
		return nil, errors.New("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:s.aead.NonceSize()], ciphertext[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("open envelope: %w", err)
	}
	return plaintext, nil
}
