package store

import (
	"database/sql"
	"errors"
	"testing"

	"voice-auth/internal/voice"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPgError(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{"40001", voice.ErrConflict},
		{"40P01", voice.ErrConflict},
		{"23505", voice.ErrConflict},
		{"23503", voice.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := mapPgError(&pgconn.PgError{Code: tc.code})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	other := errors.New("boom")
	assert.Same(t, other, mapPgError(other))
	assert.NoError(t, mapPgError(nil))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40001"}))
	assert.True(t, isRetryable(&pgconn.PgError{Code: "40P01"}))
	assert.False(t, isRetryable(&pgconn.PgError{Code: "23505"}))
	assert.False(t, isRetryable(errors.New("x")))
}

func TestParseVector(t *testing.T) {
	v, err := parseVector(sql.NullString{String: "[1,2.5,-3]", Valid: true})
	require.NoError(t, err)
	assert.Equal(t, voice.Embedding{1, 2.5, -3}, v)

	_, err = parseVector(sql.NullString{})
	require.Error(t, err)

	_, err = parseVector(sql.NullString{String: "[1,abc]", Valid: true})
	require.Error(t, err)
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, "alice", escapeLike("alice"))
	assert.Equal(t, `50\%\_off\\`, escapeLike(`50%_off\`))
}
