// Package secrets encrypts credentials before they reach a store.
package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	MinSecretLength = 32
	nonceSize       = 12
	keySize         = 32
	iterations      = 100000
	salt            = "pageinbox-token-encryption-v1"
	// prefix marks values written by Encrypt so plaintext rows written
	// before encryption was enabled still read back.
	prefix = "enc:v1:"
)

// Encryptor seals and opens values with AES-GCM. A zero Encryptor, or one
// built from an empty secret, passes values through unchanged.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor derives a key from secret with PBKDF2.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return &Encryptor{}, nil
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", MinSecretLength)
	}

	key := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

// Enabled reports whether values are actually encrypted.
func (e *Encryptor) Enabled() bool {
	return e != nil && e.gcm != nil
}

func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nil, nonce, []byte(plaintext), nil)
	return prefix + base64.StdEncoding.EncodeToString(append(nonce, sealed...)), nil
}

func (e *Encryptor) Decrypt(value string) (string, error) {
	if len(value) < len(prefix) || value[:len(prefix)] != prefix {
		return value, nil
	}
	if !e.Enabled() {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(value[len(prefix):])
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	plaintext, err := e.gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}
