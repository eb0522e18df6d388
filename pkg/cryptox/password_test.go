package cryptox_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelorus/orgauth/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	pepperPath := filepath.Join(os.TempDir(), "orgauth-cryptox-test-pepper")
	cryptox.SetPepperPath(pepperPath)

	os.Remove(pepperPath)
	defer os.Remove(pepperPath)

	os.Exit(m.Run())
}

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := cryptox.HashPassword("P@ssw0rd123!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	require.NoError(t, cryptox.VerifyPassword("P@ssw0rd123!", hash))
	require.Error(t, cryptox.VerifyPassword("wrong-password", hash))
}

func TestHashPasswordSaltsDiffer(t *testing.T) {
	first, err := cryptox.HashPassword("P@ssw0rd123!")
	require.NoError(t, err)
	second, err := cryptox.HashPassword("P@ssw0rd123!")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestVerifyPasswordRejectsMalformedHash(t *testing.T) {
	require.Error(t, cryptox.VerifyPassword("pw", "not-a-phc-string"))
	require.Error(t, cryptox.VerifyPassword("pw", "$bcrypt$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA"))
}

func TestGeneratePassword(t *testing.T) {
	seen := map[string]struct{}{}
	for range 20 {
		pw, err := cryptox.GeneratePassword()
		require.NoError(t, err)
		require.Len(t, pw, 16)
		require.True(t, strings.ContainsAny(pw, "ABCDEFGHJKLMNPQRSTUVWXYZ"), "missing uppercase: %q", pw)
		require.True(t, strings.ContainsAny(pw, "abcdefghijkmnpqrstuvwxyz"), "missing lowercase: %q", pw)
		require.True(t, strings.ContainsAny(pw, "23456789"), "missing digit: %q", pw)
		require.True(t, strings.ContainsAny(pw, "!@#$%^&*-_+="), "missing special: %q", pw)
		seen[pw] = struct{}{}
	}
	require.Len(t, seen, 20, "generated passwords should not repeat")
}

func TestFingerprintToken(t *testing.T) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	fp := cryptox.FingerprintToken(token)
	require.Equal(t, fp, cryptox.FingerprintToken(token))
	require.NotEqual(t, fp, cryptox.FingerprintToken(token+"x"))
	require.Len(t, fp, 43)
}
