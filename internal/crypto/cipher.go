package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const gcmTagSize = 16

// ErrAuthenticationFailed reports that ciphertext failed tag verification:
// tampered data or the wrong session key. Callers must treat this as a
// per-message decryption error, not a fatal condition.
var ErrAuthenticationFailed = errors.New("message authentication failed")

// Envelope is an AES-256-GCM encrypted message body with the auth tag split
// out, matching the persisted encryptedText shape. All fields are base64.
type Envelope struct {
	Ciphertext string
	IV         string
	AuthTag    string
}

// EncryptText seals plaintext under the session key with a fresh random IV.
func EncryptText(plaintext string, key []byte) (*Envelope, error) {
	if len(key) != sessionKeySize {
		return nil, fmt.Errorf("invalid session key length: got %d want %d", len(key), sessionKeySize)
	}

	aead, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)

	// Seal appends the tag; the wire format carries it separately
	tagStart := len(sealed) - gcmTagSize

	return &Envelope{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed[:tagStart]),
		IV:         base64.StdEncoding.EncodeToString(iv),
		AuthTag:    base64.StdEncoding.EncodeToString(sealed[tagStart:]),
	}, nil
}

// DecryptText opens an envelope with the session key. Tag verification
// failure surfaces as ErrAuthenticationFailed.
func DecryptText(env *Envelope, key []byte) (string, error) {
	if env == nil {
		return "", errors.New("envelope is required")
	}
	if len(key) != sessionKeySize {
		return "", fmt.Errorf("invalid session key length: got %d want %d", len(key), sessionKeySize)
	}

	ct, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return "", fmt.Errorf("decode iv: %w", err)
	}
	tag, err := base64.StdEncoding.DecodeString(env.AuthTag)
	if err != nil {
		return "", fmt.Errorf("decode auth tag: %w", err)
	}

	aead, err := newGCM(key)
	if err != nil {
		return "", err
	}
	if len(iv) != aead.NonceSize() {
		return "", fmt.Errorf("invalid iv length: got %d want %d", len(iv), aead.NonceSize())
	}

	plaintext, err := aead.Open(nil, iv, append(ct, tag...), nil)
	if err != nil {
		return "", ErrAuthenticationFailed
	}

	return string(plaintext), nil
}
