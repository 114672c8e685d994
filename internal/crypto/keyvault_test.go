package crypto

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testPairOnce sync.Once
	testPair     *KeyPair
)

// testKeyPair generates one RSA pair and shares it across tests; generation
// dominates test time otherwise.
func testKeyPair(t *testing.T) *KeyPair {
	t.Helper()
	testPairOnce.Do(func() {
		kp, err := GenerateKeyPair()
		if err != nil {
			t.Fatalf("generate key pair: %v", err)
		}
		testPair = kp
	})
	return testPair
}

func TestGenerateKeyPair(t *testing.T) {
	kp := testKeyPair(t)

	assert.Contains(t, kp.PublicKeyPEM, "BEGIN PUBLIC KEY")
	assert.NotEmpty(t, kp.PrivateKeyDER)

	pub, err := ParsePublicKeyPEM(kp.PublicKeyPEM)
	require.NoError(t, err)
	assert.Equal(t, rsaKeyBits, pub.N.BitLen())

	priv, err := ParsePrivateKey(kp.PrivateKeyDER)
	require.NoError(t, err)
	assert.Equal(t, pub.N, priv.PublicKey.N)
}

func TestWrapUnwrapPrivateKey(t *testing.T) {
	kp := testKeyPair(t)

	wk, err := WrapPrivateKey(kp.PrivateKeyDER, "correct horse battery staple")
	require.NoError(t, err)
	assert.NotEmpty(t, wk.Wrapped)
	assert.NotEmpty(t, wk.Salt)
	assert.NotEmpty(t, wk.IV)

	got, err := UnwrapPrivateKey(wk, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKeyDER, got)
}

func TestUnwrapWrongPassword(t *testing.T) {
	kp := testKeyPair(t)

	wk, err := WrapPrivateKey(kp.PrivateKeyDER, "right")
	require.NoError(t, err)

	_, err = UnwrapPrivateKey(wk, "wrong")
	assert.ErrorIs(t, err, ErrWrongPassword)
}

func TestWrapUsesFreshSalt(t *testing.T) {
	kp := testKeyPair(t)

	a, err := WrapPrivateKey(kp.PrivateKeyDER, "pw")
	require.NoError(t, err)
	b, err := WrapPrivateKey(kp.PrivateKeyDER, "pw")
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.Wrapped, b.Wrapped)
}

func TestWrapValidation(t *testing.T) {
	kp := testKeyPair(t)

	_, err := WrapPrivateKey(nil, "pw")
	assert.Error(t, err)

	_, err = WrapPrivateKey(kp.PrivateKeyDER, "")
	assert.Error(t, err)
}

func TestVaultStore(t *testing.T) {
	kp := testKeyPair(t)
	wk, err := WrapPrivateKey(kp.PrivateKeyDER, "pw")
	require.NoError(t, err)

	dir := t.TempDir()
	vs, err := NewVaultStore(dir)
	require.NoError(t, err)

	t.Run("missing key reports unlock required", func(t *testing.T) {
		_, err := vs.Get("nobody")
		assert.ErrorIs(t, err, ErrNeedsUnlock)
		assert.False(t, vs.Has("nobody"))
	})

	t.Run("put and get by id", func(t *testing.T) {
		require.NoError(t, vs.Put("user-1", "u1@example.com", wk))

		got, err := vs.Get("user-1")
		require.NoError(t, err)
		assert.Equal(t, wk.Wrapped, got.Wrapped)
	})

	t.Run("get by email alias", func(t *testing.T) {
		got, err := vs.Get("u1@example.com")
		require.NoError(t, err)
		assert.Equal(t, wk.Wrapped, got.Wrapped)
	})

	t.Run("aliases survive reopen", func(t *testing.T) {
		reopened, err := NewVaultStore(dir)
		require.NoError(t, err)
		assert.True(t, reopened.Has("u1@example.com"))
	})

	t.Run("delete removes entry and alias", func(t *testing.T) {
		require.NoError(t, vs.Delete("user-1"))
		_, err := vs.Get("user-1")
		assert.ErrorIs(t, err, ErrNeedsUnlock)
		assert.False(t, vs.Has("u1@example.com"))
	})
}

func TestVaultStoreSanitizesPath(t *testing.T) {
	vs, err := NewVaultStore(t.TempDir())
	require.NoError(t, err)

	kp := testKeyPair(t)
	wk, err := WrapPrivateKey(kp.PrivateKeyDER, "pw")
	require.NoError(t, err)

	require.NoError(t, vs.Put("../../../etc/passwd", "", wk))

	got, err := vs.Get("../../../etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, wk.Wrapped, got.Wrapped)
}
