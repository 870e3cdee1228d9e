package inference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"voice-auth/internal/audio"
	"voice-auth/internal/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhisperTranscriber_Transcribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/audio/transcriptions"), r.URL.Path)
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))
		if f, hdr, err := r.FormFile("file"); assert.NoError(t, err) {
			assert.Equal(t, "audio.wav", hdr.Filename)
			_ = f.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  Open, Sesame!  "}`))
	}))
	t.Cleanup(srv.Close)

	tr := NewWhisperTranscriber(WhisperConfig{APIKey: "test", BaseURL: srv.URL + "/v1/"}, nil)
	text, err := tr.Transcribe(context.Background(), clip, "en")
	require.NoError(t, err)
	assert.Equal(t, "Open, Sesame!", text)
}

func TestWhisperTranscriber_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	}))
	t.Cleanup(srv.Close)

	tr := NewWhisperTranscriber(WhisperConfig{APIKey: "test", BaseURL: srv.URL + "/v1/"}, nil)
	_, err := tr.Transcribe(context.Background(), clip, "en")
	require.ErrorIs(t, err, voice.ErrTranscriptionFailed)
}

func TestWhisperTranscriber_RejectsInvalidWaveform(t *testing.T) {
	tr := NewWhisperTranscriber(WhisperConfig{APIKey: "test", BaseURL: "http://127.0.0.1:1/"}, nil)
	_, err := tr.Transcribe(context.Background(), audio.Waveform{}, "en")
	require.ErrorIs(t, err, voice.ErrTranscriptionFailed)
}
