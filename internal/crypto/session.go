package crypto

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
)

const sessionKeySize = 32 // AES-256

// ErrKeyUnavailable is returned when an operation needs the local private key
// but none has been unlocked into memory for this session.
var ErrKeyUnavailable = errors.New("private key not loaded for this session")

// Directory resolves a peer's public key. Backed by the server's key
// directory in production, by a fixture in tests.
type Directory interface {
	GetPublicKey(ctx context.Context, userID string) (string, error)
}

// SessionKey is an ephemeral symmetric key for one (local user, peer) pair.
// Raw is reused by the creator across messages; Wrapped travels with each
// outgoing message so the peer can recover Raw with its private key.
type SessionKey struct {
	Raw     []byte
	Wrapped string
}

// SessionManager caches per-peer session keys for the sending side and keeps
// the unwrapped local private key in memory only. Keys are lost on process
// restart or Reset, which is the intended lifecycle.
type SessionManager struct {
	directory Directory

	mu       sync.Mutex
	priv     *rsa.PrivateKey
	peerKeys map[string]*SessionKey

	// receiving side: unwrap results keyed by digest of the wrapped bytes,
	// so repeated messages under one session key skip the RSA operation
	unwrapped map[[sha256.Size]byte][]byte
}

// NewSessionManager creates a manager with no private key loaded; Unlock must
// run before any unwrap can succeed.
func NewSessionManager(directory Directory) *SessionManager {
	return &SessionManager{
		directory: directory,
		peerKeys:  make(map[string]*SessionKey),
		unwrapped: make(map[[sha256.Size]byte][]byte),
	}
}

// Unlock loads unwrapped private key material into memory for this session.
func (sm *SessionManager) Unlock(privDER []byte) error {
	priv, err := ParsePrivateKey(privDER)
	if err != nil {
		return err
	}

	sm.mu.Lock()
	sm.priv = priv
	sm.mu.Unlock()
	return nil
}

// Unlocked reports whether a private key is loaded.
func (sm *SessionManager) Unlocked() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.priv != nil
}

// GetOrCreateSessionKey returns the cached session key for the peer, or
// mints a new one: fetch the peer's public key, generate a random AES-256
// key, wrap it under the peer's key, cache both. Wrapping happens once per
// peer per session and is amortized across every message that follows.
func (sm *SessionManager) GetOrCreateSessionKey(ctx context.Context, peerID string) (*SessionKey, error) {
	sm.mu.Lock()
	if sk, ok := sm.peerKeys[peerID]; ok {
		sm.mu.Unlock()
		return sk, nil
	}
	sm.mu.Unlock()

	pubPEM, err := sm.directory.GetPublicKey(ctx, peerID)
	if err != nil {
		return nil, fmt.Errorf("fetch public key for %s: %w", peerID, err)
	}
	pub, err := ParsePublicKeyPEM(pubPEM)
	if err != nil {
		return nil, err
	}

	raw := make([]byte, sessionKeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate session key: %w", err)
	}

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("wrap session key: %w", err)
	}

	sk := &SessionKey{
		Raw:     raw,
		Wrapped: base64.StdEncoding.EncodeToString(wrapped),
	}

	sm.mu.Lock()
	// another goroutine may have raced us; first writer wins so both sides
	// keep using a single wrapped key for the peer
	if existing, ok := sm.peerKeys[peerID]; ok {
		sm.mu.Unlock()
		return existing, nil
	}
	sm.peerKeys[peerID] = sk
	sm.mu.Unlock()

	return sk, nil
}

// UnwrapSessionKey recovers a session key from the wrapped bytes attached to
// an incoming message, using the local private key. Results are cached by
// digest of the wrapped bytes, so a long conversation does one RSA decrypt.
func (sm *SessionManager) UnwrapSessionKey(wrappedB64 string) ([]byte, error) {
	wrapped, err := base64.StdEncoding.DecodeString(wrappedB64)
	if err != nil {
		return nil, fmt.Errorf("decode wrapped session key: %w", err)
	}
	digest := sha256.Sum256(wrapped)

	sm.mu.Lock()
	if raw, ok := sm.unwrapped[digest]; ok {
		sm.mu.Unlock()
		return raw, nil
	}
	priv := sm.priv
	sm.mu.Unlock()

	if priv == nil {
		return nil, ErrKeyUnavailable
	}

	raw, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrap session key: %w", err)
	}

	sm.mu.Lock()
	if len(sm.unwrapped) >= 256 {
		// cheap bound; a session rarely sees this many distinct wrapped keys
		sm.unwrapped = make(map[[sha256.Size]byte][]byte)
	}
	sm.unwrapped[digest] = raw
	sm.mu.Unlock()

	return raw, nil
}

// Placeholder bodies shown when an encrypted message cannot be recovered
// locally. A failed decrypt degrades one message, never the conversation.
const (
	PlaceholderSent   = " [You sent an encrypted message]"
	PlaceholderFailed = "[Unable to decrypt - encryption error]"
	PlaceholderLocked = "[Encrypted - please log out and log in again]"
)

// OpenIncoming recovers the plaintext of an incoming encrypted body, mapping
// failures onto display placeholders: a missing private key means the whole
// session needs a re-login, anything else marks just this message.
func (sm *SessionManager) OpenIncoming(env *Envelope, wrappedKeyB64 string) string {
	// our own encrypted send: the session key was wrapped for the peer,
	// not for us, so there is nothing to recover locally
	if wrappedKeyB64 == "" {
		return PlaceholderSent
	}

	raw, err := sm.UnwrapSessionKey(wrappedKeyB64)
	if errors.Is(err, ErrKeyUnavailable) {
		return PlaceholderLocked
	}
	if err != nil {
		return PlaceholderFailed
	}

	text, err := DecryptText(env, raw)
	if err != nil {
		return PlaceholderFailed
	}
	return text
}

// Reset drops the private key and all cached session keys, e.g. on logout.
func (sm *SessionManager) Reset() {
	sm.mu.Lock()
	sm.priv = nil
	sm.peerKeys = make(map[string]*SessionKey)
	sm.unwrapped = make(map[[sha256.Size]byte][]byte)
	sm.mu.Unlock()
}
