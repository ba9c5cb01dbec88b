// Package vault encrypts API credentials at rest with a process-wide
// symmetric key derived once from the configured secret.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	apperrors "github.com/portfolio-tracker/internal/errors"
)

// Vault performs authenticated encryption with AES-256-GCM. The stored
// ciphertext is base64(nonce || sealed), self-contained given only the key.
type Vault struct {
	aead cipher.AEAD
}

// New derives the encryption key from the configured secret and returns a
// ready vault. The secret may be 32 raw bytes hex-encoded, 32 raw bytes
// base64-encoded, or an arbitrary passphrase hashed to 32 bytes.
func New(secret string) (*Vault, error) {
	if secret == "" {
		return nil, fmt.Errorf("vault secret is required")
	}

	key := deriveKey(secret)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}

	return &Vault{aead: aead}, nil
}

func deriveKey(secret string) []byte {
	if raw, err := hex.DecodeString(secret); err == nil && len(raw) == 32 {
		return raw
	}
	if raw, err := base64.StdEncoding.DecodeString(secret); err == nil && len(raw) == 32 {
		return raw
	}
	sum := sha256.Sum256([]byte(secret))
	return sum[:]
}

// Encrypt seals the plaintext under a fresh random nonce.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, v.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := v.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a ciphertext produced by Encrypt. Tampered or wrong-key
// ciphertext fails the authentication tag and returns a DecryptionError,
// never garbage.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", apperrors.NewDecryptionError(err)
	}
	if len(raw) < v.aead.NonceSize() {
		return "", apperrors.NewDecryptionError(fmt.Errorf("ciphertext too short"))
	}

	nonce, sealed := raw[:v.aead.NonceSize()], raw[v.aead.NonceSize():]
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", apperrors.NewDecryptionError(err)
	}

	return string(plaintext), nil
}
