// Package cardcrypto encrypts card numbers for storage.
//
// Ciphertext is AES-GCM with a random nonce per call, hex encoded as
// nonce||sealed. Encryption is therefore randomized: two encryptions of
// the same number differ, and tampered ciphertext fails authentication on
// decrypt.
package cardcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

var (
	// ErrInvalidKeySize is returned by NewCodec for keys that are not
	// 16, 24 or 32 bytes.
	ErrInvalidKeySize = errors.New("cardcrypto: key must be 16, 24 or 32 bytes")

	// ErrDecrypt is returned for malformed or tampered ciphertext.
	ErrDecrypt = errors.New("cardcrypto: decryption failed")
)

// Codec encrypts and decrypts card numbers under a fixed key.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 16/24/32-byte key supplied at startup.
func NewCodec(key []byte) (*Codec, error) {
	switch len(key) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%w (got %d)", ErrInvalidKeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// Encrypt seals plaintext and returns hex(nonce || ciphertext).
func (c *Codec) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any malformed or tampered input yields
// ErrDecrypt; the underlying cause is not distinguished to avoid acting
// as a padding/authentication oracle.
func (c *Codec) Decrypt(encrypted string) (string, error) {
	raw, err := hex.DecodeString(encrypted)
	if err != nil {
		return "", fmt.Errorf("%w: bad encoding", ErrDecrypt)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecrypt)
	}
	nonce, sealed := raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication", ErrDecrypt)
	}
	return string(plaintext), nil
}
