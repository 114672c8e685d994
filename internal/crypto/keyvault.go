// Package crypto implements the client-side end-to-end encryption pieces:
// asymmetric key pair lifecycle, password-based private-key wrapping,
// per-peer session keys, and the authenticated message cipher.
//
// The server never sees an unwrapped private key or a raw session key; it
// stores public keys and the wrapped material attached to messages.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	rsaKeyBits = 2048

	// PBKDF2 parameters for password wrapping. 100k iterations is the
	// OWASP floor for PBKDF2-SHA256.
	pbkdf2Iterations = 100_000
	saltSize         = 16
	wrapKeySize      = 32
)

var (
	// ErrWrongPassword is returned when unwrapping fails authentication,
	// i.e. the password is wrong or the stored blob is corrupted.
	ErrWrongPassword = errors.New("incorrect password or corrupted key data")
)

// KeyPair holds a freshly generated identity key pair. PublicKeyPEM goes to
// the directory service; PrivateKeyDER (PKCS#8) must be wrapped with
// WrapPrivateKey before it touches any storage.
type KeyPair struct {
	PublicKeyPEM  string
	PrivateKeyDER []byte
}

// WrappedKey is a password-wrapped private key as persisted on the device.
// All fields are base64.
type WrappedKey struct {
	Wrapped string `json:"encryptedPrivateKey"`
	Salt    string `json:"salt"`
	IV      string `json:"iv"`
}

// GenerateKeyPair creates a new RSA-2048 identity key pair.
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generate RSA key: %w", err)
	}

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}

	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	return &KeyPair{
		PublicKeyPEM:  string(pubPEM),
		PrivateKeyDER: privDER,
	}, nil
}

// WrapPrivateKey encrypts private key material under a key derived from the
// user's password. A fresh random salt and IV are used per wrap.
func WrapPrivateKey(privDER []byte, password string) (*WrappedKey, error) {
	if len(privDER) == 0 {
		return nil, errors.New("private key material is required")
	}
	if password == "" {
		return nil, errors.New("password is required")
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, wrapKeySize, sha256.New)

	aead, err := newGCM(derived)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, privDER, nil)

	return &WrappedKey{
		Wrapped: base64.StdEncoding.EncodeToString(sealed),
		Salt:    base64.StdEncoding.EncodeToString(salt),
		IV:      base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// UnwrapPrivateKey recovers private key material from a wrapped blob. A wrong
// password surfaces as ErrWrongPassword, never as a panic or a partial key.
func UnwrapPrivateKey(wk *WrappedKey, password string) ([]byte, error) {
	if wk == nil {
		return nil, errors.New("wrapped key is required")
	}

	sealed, err := base64.StdEncoding.DecodeString(wk.Wrapped)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped key: %w", err)
	}
	salt, err := base64.StdEncoding.DecodeString(wk.Salt)
	if err != nil {
		return nil, fmt.Errorf("decode salt: %w", err)
	}
	iv, err := base64.StdEncoding.DecodeString(wk.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}

	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, wrapKeySize, sha256.New)

	aead, err := newGCM(derived)
	if err != nil {
		return nil, err
	}
	if len(iv) != aead.NonceSize() {
		return nil, fmt.Errorf("invalid iv length: got %d want %d", len(iv), aead.NonceSize())
	}

	privDER, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, ErrWrongPassword
	}

	return privDER, nil
}

// ParsePrivateKey decodes PKCS#8 DER into an RSA private key.
func ParsePrivateKey(privDER []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(privDER)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return rsaKey, nil
}

// ParsePublicKeyPEM decodes a SPKI PEM block into an RSA public key.
func ParsePublicKeyPEM(pubPEM string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pubPEM))
	if block == nil {
		return nil, errors.New("no PEM block found in public key")
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return rsaKey, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return aead, nil
}
