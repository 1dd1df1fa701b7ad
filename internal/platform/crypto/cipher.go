// Package crypto encrypts per-tenant secrets such as custom bot tokens.
//
// Ciphertexts are base64(nonce || tag || ciphertext) under AES-256-GCM.
// A Cipher built from a missing or malformed key is still usable as a value,
// but every Encrypt and Decrypt call fails with a *ConfigError.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
)

var (
	// ErrKeyUnavailable is wrapped by ConfigError when no usable key was configured.
	ErrKeyUnavailable = errors.New("encryption key unavailable")
	// ErrIntegrity means authentication failed: the data was tampered with or the key is wrong.
	ErrIntegrity = errors.New("ciphertext failed integrity check")
	// ErrMalformed means the stored value is not valid base64 or is too short.
	ErrMalformed = errors.New("malformed ciphertext")
)

// ConfigError reports why the cipher has no key.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrKeyUnavailable, e.Reason)
}

func (e *ConfigError) Unwrap() error { return ErrKeyUnavailable }

// Cipher seals bot tokens with AES-256-GCM. A Cipher built from a missing or
// malformed key is still returned; Encrypt and Decrypt then fail with KeyError.
type Cipher struct {
	aead   cipher.AEAD
	keyErr *ConfigError
}

// NewCipher builds a Cipher from a 64-character hex key. It never fails;
// check Available to find out whether the key was usable.
func NewCipher(hexKey string) *Cipher {
	if hexKey == "" {
		return &Cipher{keyErr: &ConfigError{Reason: "TOKEN_ENCRYPTION_KEY is not set"}}
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return &Cipher{keyErr: &ConfigError{Reason: "TOKEN_ENCRYPTION_KEY is not valid hex"}}
	}
	if len(key) != keySize {
		return &Cipher{keyErr: &ConfigError{
			Reason: fmt.Sprintf("TOKEN_ENCRYPTION_KEY must be %d hex characters, got %d", keySize*2, len(hexKey)),
		}}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return &Cipher{keyErr: &ConfigError{Reason: err.Error()}}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return &Cipher{keyErr: &ConfigError{Reason: err.Error()}}
	}

	return &Cipher{aead: aead}
}

// Available reports whether a valid key was configured.
func (c *Cipher) Available() bool {
	return c != nil && c.aead != nil
}

// KeyError returns the configuration problem, or nil when the cipher is available.
func (c *Cipher) KeyError() error {
	if c == nil {
		return &ConfigError{Reason: "cipher not initialized"}
	}
	if c.keyErr == nil {
		return nil
	}
	return c.keyErr
}

// Encrypt seals plaintext with a fresh random nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if err := c.KeyError(); err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	// Seal appends ciphertext||tag; the stored layout puts the tag first.
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	out := make([]byte, 0, nonceSize+tagSize+len(ct))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) (string, error) {
	if err := c.KeyError(); err != nil {
		return "", err
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if len(raw) < nonceSize+tagSize {
		return "", fmt.Errorf("%w: %d bytes", ErrMalformed, len(raw))
	}

	nonce := raw[:nonceSize]
	tag := raw[nonceSize : nonceSize+tagSize]
	ct := raw[nonceSize+tagSize:]

	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}
