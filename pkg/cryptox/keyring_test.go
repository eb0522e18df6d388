package cryptox_test

import (
	"testing"

	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func testKeyring(t *testing.T) *cryptox.Keyring {
	t.Helper()
	ring, err := cryptox.NewKeyring(map[int][]byte{
		1: []byte("old-key-material"),
		2: []byte("active-key-material"),
	}, 2)
	require.NoError(t, err)
	return ring
}

func TestNewKeyring(t *testing.T) {
	t.Parallel()

	t.Run("rejects empty keyring", func(t *testing.T) {
		_, err := cryptox.NewKeyring(nil, 1)
		require.Error(t, err)
	})

	t.Run("rejects missing active version", func(t *testing.T) {
		_, err := cryptox.NewKeyring(map[int][]byte{1: []byte("k")}, 9)
		require.Error(t, err)
	})
}

func TestVersions(t *testing.T) {
	t.Parallel()

	t.Run("active first, rest newest first", func(t *testing.T) {
		ring, err := cryptox.NewKeyring(map[int][]byte{
			1: []byte("a"), 2: []byte("b"), 3: []byte("c"),
		}, 2)
		require.NoError(t, err)
		require.Equal(t, []int{2, 3, 1}, ring.Versions())
	})

	t.Run("single version", func(t *testing.T) {
		ring, err := cryptox.NewKeyring(map[int][]byte{1: []byte("k")}, 1)
		require.NoError(t, err)
		require.Equal(t, []int{1}, ring.Versions())
	})
}

func TestHMAC(t *testing.T) {
	t.Parallel()
	ring := testKeyring(t)

	t.Run("deterministic per value and version", func(t *testing.T) {
		a, err := ring.HMAC("jsmith", 2)
		require.NoError(t, err)
		b, err := ring.HMAC("jsmith", 2)
		require.NoError(t, err)
		require.Equal(t, a, b)
		require.Len(t, a, 64) // hex SHA-256
	})

	t.Run("distinct inputs yield distinct digests", func(t *testing.T) {
		a, err := ring.HMAC("jsmith", 2)
		require.NoError(t, err)
		b, err := ring.HMAC("jsmith2", 2)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("distinct versions yield distinct digests", func(t *testing.T) {
		a, err := ring.HMAC("jsmith", 1)
		require.NoError(t, err)
		b, err := ring.HMAC("jsmith", 2)
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("unknown version rejected", func(t *testing.T) {
		_, err := ring.HMAC("jsmith", 9)
		require.Error(t, err)
	})
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	ring := testKeyring(t)

	for _, value := range []string{"", "a", "jsmith", "jsmith@example.org", "üñïçødé"} {
		env, err := ring.Encrypt(value, 2)
		require.NoError(t, err)

		got, err := ring.Decrypt(env)
		require.NoError(t, err)
		require.Equal(t, value, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	t.Parallel()
	ring := testKeyring(t)

	first, err := ring.Encrypt("jsmith", 2)
	require.NoError(t, err)
	second, err := ring.Encrypt("jsmith", 2)
	require.NoError(t, err)

	require.NotEqual(t, first.IV, second.IV)
	require.NotEqual(t, first.Value, second.Value)
}

func TestDecryptFailures(t *testing.T) {
	t.Parallel()
	ring := testKeyring(t)

	env, err := ring.Encrypt("jsmith", 2)
	require.NoError(t, err)

	t.Run("tampered ciphertext", func(t *testing.T) {
		tampered := env
		tampered.Value = "00" + tampered.Value[2:]
		_, err := ring.Decrypt(tampered)
		require.ErrorIs(t, err, cryptox.ErrCrypto)
	})

	t.Run("tampered auth tag", func(t *testing.T) {
		tampered := env
		tampered.AuthTag = "00" + tampered.AuthTag[2:]
		_, err := ring.Decrypt(tampered)
		require.ErrorIs(t, err, cryptox.ErrCrypto)
	})

	t.Run("unknown key version", func(t *testing.T) {
		tampered := env
		tampered.KeyVersion = 9
		_, err := ring.Decrypt(tampered)
		require.ErrorIs(t, err, cryptox.ErrCrypto)
	})
}

func TestEnvelopeEncodeParse(t *testing.T) {
	t.Parallel()
	ring := testKeyring(t)

	env, err := ring.Encrypt("jsmith@example.org", 2)
	require.NoError(t, err)

	encoded, err := env.Encode()
	require.NoError(t, err)
	require.Contains(t, encoded, `"keyVersion":2`)

	parsed, err := cryptox.ParseEnvelope(encoded)
	require.NoError(t, err)
	require.Equal(t, env, parsed)

	plaintext, err := ring.Decrypt(parsed)
	require.NoError(t, err)
	require.Equal(t, "jsmith@example.org", plaintext)
}

func TestMask(t *testing.T) {
	t.Parallel()

	require.Equal(t, "", cryptox.Mask(""))
	require.Equal(t, "*", cryptox.Mask("a"))
	require.Equal(t, "**", cryptox.Mask("ab"))
	require.Equal(t, "a*c", cryptox.Mask("abc"))
	require.Equal(t, "a***e", cryptox.Mask("alice"))
	require.Equal(t, "j****************g", cryptox.Mask("jsmith@example.org"))
}
