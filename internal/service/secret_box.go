package service

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

// SealedPrefix marks a configuration value produced by SecretBox.Seal.
const SealedPrefix = "enc:"

// SecretBox seals configuration secrets (JWT key, custody API secret,
// webhook secret) with AES-256-GCM so they can sit in config files.
type SecretBox struct {
	aead cipher.AEAD
}

// NewSecretBox creates a box from a 64-character hex key (32 bytes).
func NewSecretBox(hexKey string) (*SecretBox, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decoding secrets key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("secrets key must be 32 bytes, got %d", len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &SecretBox{aead: aead}, nil
}

// Seal returns "enc:" + hex(nonce || ciphertext).
func (b *SecretBox) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return SealedPrefix + hex.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *SecretBox) Open(value string) (string, error) {
	raw, ok := strings.CutPrefix(value, SealedPrefix)
	if !ok {
		return "", fmt.Errorf("value is not sealed")
	}
	sealed, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("decoding sealed value: %w", err)
	}

	nonceSize := b.aead.NonceSize()
	if len(sealed) < nonceSize {
		return "", fmt.Errorf("sealed value too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("decrypting: %w", err)
	}
	return string(plaintext), nil
}

// IsSealed reports whether value carries the sealed prefix.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// RevealSecrets replaces every sealed value in place with its plaintext.
// Plain values are left alone. A sealed value with no box is an error.
func RevealSecrets(box *SecretBox, values ...*string) error {
	for _, v := range values {
		if v == nil || !IsSealed(*v) {
			continue
		}
		if box == nil {
			return fmt.Errorf("sealed secret found but no secrets key is configured")
		}
		plain, err := box.Open(*v)
		if err != nil {
			return err
		}
		*v = plain
	}
	return nil
}
