// Package vault persists browser cookies per (hub, source) encrypted at
// rest with AES-256-GCM, so sessions survive across runs without
// re-authenticating.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/scrypt"
)

const (
	keyLen   = 32
	nonceLen = 16
	tagLen   = 16
	kdfSalt  = "cookie-salt"
)

// ErrNoSecret is returned when no operator secret is configured.
var ErrNoSecret = errors.New("vault: no encryption secret configured")

// DeriveKey turns the operator secret into a 32-byte key. A secret whose
// first 64 characters are hex is used directly; anything else goes through
// scrypt (N=16384, r=8, p=1) with a fixed salt.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if len(secret) >= 2*keyLen {
		if k, err := hex.DecodeString(secret[:2*keyLen]); err == nil {
			return k, nil
		}
	}
	k, err := scrypt.Key([]byte(secret), []byte(kdfSalt), 1<<14, 8, 1, keyLen)
	if err != nil {
		return nil, fmt.Errorf("vault: derive key: %w", err)
	}
	return k, nil
}

// Cipher seals payloads as base64(nonce || tag || ciphertext) with a random
// 128-bit nonce per message.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the operator secret.
func NewCipher(secret string) (*Cipher, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("vault: aes: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceLen)
	if err != nil {
		return nil, fmt.Errorf("vault: gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plain.
func (c *Cipher) Encrypt(plain []byte) (string, error) {
	nonce := make([]byte, nonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("vault: nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, plain, nil) // ciphertext || tag
	ct, tag := sealed[:len(sealed)-tagLen], sealed[len(sealed)-tagLen:]

	out := make([]byte, 0, nonceLen+len(sealed))
	out = append(out, nonce...)
	out = append(out, tag...)
	out = append(out, ct...)
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a payload produced by Encrypt.
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	buf, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("vault: base64: %w", err)
	}
	if len(buf) < nonceLen+tagLen {
		return nil, errors.New("vault: payload too short")
	}
	nonce := buf[:nonceLen]
	tag := buf[nonceLen : nonceLen+tagLen]
	ct := buf[nonceLen+tagLen:]

	sealed := make([]byte, 0, len(ct)+tagLen)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("vault: open: %w", err)
	}
	return plain, nil
}
