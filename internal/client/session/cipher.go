// Package session caches the authentication session encrypted at rest so the
// client stays usable without a live connection. The symmetric key is
// re-derived from a plaintext device id stored next to (never inside) the
// encrypted blob; the key itself is never persisted.
package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/timegrid/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// keyNamespace salts the derivation so a key derived here can never
	// collide with one derived from the same device id elsewhere.
	keyNamespace = "timegrid-session-v1:"

	keyIterations = 100_000
	keyLength     = 32
	nonceSize     = 12
)

// DeriveKey stretches the device id into a 256-bit AES key with PBKDF2
// (SHA-256, 100k iterations). Deterministic: the same device id always
// yields the same key.
func DeriveKey(deviceID string) []byte {
	salt := []byte(keyNamespace + deviceID)
	return pbkdf2.Key([]byte(deviceID), salt, keyIterations, keyLength, sha256.New)
}

// AeadCipher is the authenticated-encryption capability. Seal returns
// nonce||ciphertext; Open expects the same layout and fails on any
// tampering or key mismatch.
type AeadCipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(blob []byte) ([]byte, error)
}

// GCMCipher implements AeadCipher with AES-GCM and a fresh random 12-byte
// nonce per Seal.
type GCMCipher struct {
	key []byte
}

func NewGCMCipher(key []byte) *GCMCipher {
	return &GCMCipher{key: key}
}

func (c *GCMCipher) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func (c *GCMCipher) Seal(plaintext []byte) ([]byte, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce := common.GenerateRandByteArray(nonceSize)
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return append(nonce, ciphertext...), nil
}

func (c *GCMCipher) Open(blob []byte) ([]byte, error) {
	if len(blob) <= nonceSize {
		return nil, errors.New("blob too short")
	}

	aead, err := c.aead()
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}

	nonce, ciphertext := blob[:nonceSize], blob[nonceSize:]
	return aead.Open(nil, nonce, ciphertext, nil)
}
