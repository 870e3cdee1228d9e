package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"voice-auth/internal/audit"
	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeAudio(t *testing.T) {
	for name, in := range map[string]string{
		"plain":      "aGVsbG8=",
		"unpadded":   "aGVsbG8",
		"data uri":   "data:audio/webm;codecs=opus;base64,aGVsbG8=",
		"whitespace": "  aGVsbG8=\n",
	} {
		t.Run(name, func(t *testing.T) {
			b, err := decodeAudio("audio", in)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(b))
		})
	}

	for name, in := range map[string]string{
		"empty":        "",
		"bad base64":   "!!!",
		"no comma":     "data:audio/wav;base64",
		"not base64":   "data:text/plain,hello",
		"empty in uri": "data:audio/wav;base64,",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decodeAudio("audio", in)
			assert.ErrorIs(t, err, voice.ErrValidation)
		})
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{voice.ErrInvalidSampleCount, http.StatusBadRequest},
		{voice.ErrUnsupportedFormat, http.StatusBadRequest},
		{audit.ErrInvalidEvent, http.StatusBadRequest},
		{voice.ErrInvalidCredentials, http.StatusUnauthorized},
		{voice.ErrForbidden, http.StatusForbidden},
		{fmt.Errorf("load: %w", voice.ErrPhraseNotFound), http.StatusNotFound},
		{voice.ErrConflict, http.StatusConflict},
		{voice.ErrDependencyTimeout, http.StatusGatewayTimeout},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{voice.ErrDependencyBusy, http.StatusServiceUnavailable},
		{voice.ErrExtractionFailed, http.StatusBadGateway},
		{voice.ErrDecode, http.StatusBadGateway},
		{fmt.Errorf("%w: %w", voice.ErrAtomicEnrollment, errors.New("disk full")), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}

func TestIPRateLimiter(t *testing.T) {
	l := NewIPRateLimiter(1, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"))

	now = now.Add(time.Second)
	assert.True(t, l.Allow("a"))

	now = now.Add(time.Hour)
	l.Allow("c")
	l.mu.Lock()
	_, kept := l.clients["a"]
	l.mu.Unlock()
	assert.False(t, kept)
}
