package spartanbot

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "exact", truncate("exact", 5))
	assert.Equal(t, "abc", truncate("abcdef", 3))
	assert.Equal(t, "héll", truncate("héllo wörld", 4))
	assert.Equal(t, "", truncate("", 5))
}

func TestHashAndVerifyPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	valid, err := VerifyPassword(hash, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = VerifyPassword(hash, "wrong password")
	require.NoError(t, err)
	assert.False(t, valid)

	// Salts are random, so two hashes of the same password differ.
	other, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other)

	_, err = VerifyPassword("not-a-hash", "anything")
	assert.Error(t, err)
}

func TestChunkItems(t *testing.T) {
	t.Parallel()

	chunks := chunkItems(2, "a", "b", "c", "d", "e")
	require.Len(t, chunks, 3)
	assert.Equal(t, []string{"a", "b"}, chunks[0])
	assert.Equal(t, []string{"c", "d"}, chunks[1])
	assert.Equal(t, []string{"e"}, chunks[2])

	chunks = chunkItems(5, "a", "b")
	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"a", "b"}, chunks[0])

	assert.Nil(t, chunkItems[string](3))
}

func TestStringOrDash(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "-", stringOrDash(""))
	assert.Equal(t, "value", stringOrDash("value"))
}

func TestIntToString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "42", intToString(42))
	assert.Equal(t, "-7", intToString(-7))
}

func TestGenerateRandomHexString(t *testing.T) {
	t.Parallel()

	s, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.Len(t, s, 32)

	other, err := generateRandomHexString(16)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
