package crypto

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixtureDirectory serves public keys from a map, standing in for the
// server-side key directory.
type fixtureDirectory map[string]string

func (d fixtureDirectory) GetPublicKey(_ context.Context, userID string) (string, error) {
	pem, ok := d[userID]
	if !ok {
		return "", errors.New("user not found")
	}
	return pem, nil
}

func TestSessionKeyExchange(t *testing.T) {
	// bob's identity; alice only ever sees the public half
	bob := testKeyPair(t)
	dir := fixtureDirectory{"bob": bob.PublicKeyPEM}

	alice := NewSessionManager(dir)

	sk, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)
	assert.Len(t, sk.Raw, sessionKeySize)
	assert.NotEmpty(t, sk.Wrapped)

	// alice encrypts under the raw session key
	env, err := EncryptText("hello", sk.Raw)
	require.NoError(t, err)

	// bob unlocks his private key and recovers the session key from the
	// wrapped bytes that travelled with the message
	bobSession := NewSessionManager(fixtureDirectory{})
	require.NoError(t, bobSession.Unlock(bob.PrivateKeyDER))

	raw, err := bobSession.UnwrapSessionKey(sk.Wrapped)
	require.NoError(t, err)
	assert.Equal(t, sk.Raw, raw)

	got, err := DecryptText(env, raw)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestSessionKeyCachedPerPeer(t *testing.T) {
	bob := testKeyPair(t)
	alice := NewSessionManager(fixtureDirectory{"bob": bob.PublicKeyPEM})

	first, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)
	second, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestUnwrapRequiresUnlock(t *testing.T) {
	bob := testKeyPair(t)
	alice := NewSessionManager(fixtureDirectory{"bob": bob.PublicKeyPEM})

	sk, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)

	locked := NewSessionManager(fixtureDirectory{})
	assert.False(t, locked.Unlocked())

	_, err = locked.UnwrapSessionKey(sk.Wrapped)
	assert.ErrorIs(t, err, ErrKeyUnavailable)
}

func TestUnwrapResultCached(t *testing.T) {
	bob := testKeyPair(t)
	alice := NewSessionManager(fixtureDirectory{"bob": bob.PublicKeyPEM})

	sk, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)

	bobSession := NewSessionManager(fixtureDirectory{})
	require.NoError(t, bobSession.Unlock(bob.PrivateKeyDER))

	first, err := bobSession.UnwrapSessionKey(sk.Wrapped)
	require.NoError(t, err)

	// repeated unwraps of the same wrapped bytes hit the digest cache even
	// after the private key is dropped
	bobSession.mu.Lock()
	bobSession.priv = nil
	bobSession.mu.Unlock()

	second, err := bobSession.UnwrapSessionKey(sk.Wrapped)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSessionUnknownPeer(t *testing.T) {
	alice := NewSessionManager(fixtureDirectory{})

	_, err := alice.GetOrCreateSessionKey(context.Background(), "nobody")
	assert.Error(t, err)
}

func TestSessionReset(t *testing.T) {
	bob := testKeyPair(t)
	sm := NewSessionManager(fixtureDirectory{"bob": bob.PublicKeyPEM})
	require.NoError(t, sm.Unlock(bob.PrivateKeyDER))

	first, err := sm.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)

	sm.Reset()
	assert.False(t, sm.Unlocked())

	second, err := sm.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.Raw, second.Raw)
}

func TestOpenIncoming(t *testing.T) {
	bob := testKeyPair(t)
	alice := NewSessionManager(fixtureDirectory{"bob": bob.PublicKeyPEM})

	sk, err := alice.GetOrCreateSessionKey(context.Background(), "bob")
	require.NoError(t, err)
	env, err := EncryptText("secret", sk.Raw)
	require.NoError(t, err)

	bobSession := NewSessionManager(fixtureDirectory{})
	require.NoError(t, bobSession.Unlock(bob.PrivateKeyDER))

	assert.Equal(t, "secret", bobSession.OpenIncoming(env, sk.Wrapped))

	// our own copy carries no wrapped key
	assert.Equal(t, PlaceholderSent, bobSession.OpenIncoming(env, ""))

	// no private key loaded: the whole session needs a re-login
	locked := NewSessionManager(fixtureDirectory{})
	assert.Equal(t, PlaceholderLocked, locked.OpenIncoming(env, sk.Wrapped))

	// wrapped key belongs to someone else: only this message degrades
	// (a fresh pair, distinct from the shared testKeyPair used for bob)
	eve, err := GenerateKeyPair()
	require.NoError(t, err)
	eveSession := NewSessionManager(fixtureDirectory{})
	require.NoError(t, eveSession.Unlock(eve.PrivateKeyDER))
	assert.Equal(t, PlaceholderFailed, eveSession.OpenIncoming(env, sk.Wrapped))

	// ciphertext tampered after wrapping
	bad := *env
	bad.AuthTag = env.IV
	assert.Equal(t, PlaceholderFailed, bobSession.OpenIncoming(&bad, sk.Wrapped))
}
