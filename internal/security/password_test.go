package security

import (
	"testing"

	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hash, err := h.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)

	require.NoError(t, h.Compare(hash, "correct horse"))
	require.ErrorIs(t, h.Compare(hash, "wrong horse"), voice.ErrInvalidCredentials)
	require.ErrorIs(t, h.Compare("not-a-hash", "correct horse"), voice.ErrInvalidCredentials)
	h.CompareMissing("anything")
}

func TestHasher_RejectsShortPassword(t *testing.T) {
	_, err := NewHasher(bcrypt.MinCost).Hash("short")
	require.ErrorIs(t, err, voice.ErrValidation)
}

func TestNewHasher_ClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.MinCost, NewHasher(1).Cost())
	assert.Equal(t, bcrypt.DefaultCost, NewHasher(0).Cost())
}
