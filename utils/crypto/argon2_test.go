package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndCompare(t *testing.T) {
	encoded, err := GenerateFromPassword("correct horse battery staple")
	require.NoError(t, err)

	ok, err := CompareHashAndPassword(encoded, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = CompareHashAndPassword(encoded, "wrong password")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompare_InvalidFormat(t *testing.T) {
	_, err := CompareHashAndPassword("not-a-hash", "pw")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = CompareHashAndPassword("$bcrypt$whatever", "pw")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestGenerate_UniqueSalt(t *testing.T) {
	a, err := GenerateFromPassword("pw")
	require.NoError(t, err)
	b, err := GenerateFromPassword("pw")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
