package crypto

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRandBytes_LengthAndUniqueness(t *testing.T) {
	t.Parallel()

	const n = 64
	a, err := RandBytes(n)
	require.NoError(t, err)
	require.Len(t, a, n)

	b, err := RandBytes(n)
	require.NoError(t, err)
	require.False(t, bytes.Equal(a, b), "two subsequent RandBytes(%d) are equal", n)
	require.False(t, bytes.Equal(a, make([]byte, n)), "RandBytes returned all zeros")
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	t.Parallel()

	h1, err := HashPassword("p@ssw0rd")
	require.NoError(t, err)
	h2, err := HashPassword("p@ssw0rd")
	require.NoError(t, err)

	require.Len(t, h1, saltLen+int(argonKeyLen))
	require.NotEqual(t, h1, h2, "same password must hash differently under fresh salts")
}

func TestVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := VerifyPassword("correct horse battery staple", hash)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = VerifyPassword("wrong", hash)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = VerifyPassword("", hash)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = VerifyPassword("x", hash[:10])
	require.ErrorIs(t, err, ErrMalformedHash)
}
