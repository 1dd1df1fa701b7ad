// Package cryptotest provides ready-made ciphers for tests in other packages.
package cryptotest

import "github.com/batalovmv/stream-alerts-sub001/internal/platform/crypto"

// Key is a fixed, valid AES-256 key. Test use only.
const Key = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

// Cipher returns an available cipher keyed with Key.
func Cipher() *crypto.Cipher {
	return crypto.NewCipher(Key)
}

// Unavailable returns a cipher with no key, as when TOKEN_ENCRYPTION_KEY is unset.
func Unavailable() *crypto.Cipher {
	return crypto.NewCipher("")
}
