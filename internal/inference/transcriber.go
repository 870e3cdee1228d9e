package inference

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"voice-auth/internal/audio"
	"voice-auth/internal/voice"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type WhisperConfig struct {
	APIKey  string
	BaseURL string        // optional, for OpenAI-compatible servers
	Model   string        // default: whisper-1
	Timeout time.Duration // default: 60s
}

// WhisperTranscriber converts speech to text with the OpenAI audio
// transcription API.
type WhisperTranscriber struct {
	client openai.Client
	model  string
	guard  *Guard
}

func NewWhisperTranscriber(cfg WhisperConfig, guard *Guard) *WhisperTranscriber {
	if cfg.Model == "" {
		cfg.Model = openai.AudioModelWhisper1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &WhisperTranscriber{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		guard:  guard,
	}
}

// Transcribe returns the recognized text for wf. language is an ISO-639-1
// code such as "en"; empty lets the model detect it.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, wf audio.Waveform, language string) (string, error) {
	var text string
	call := func(ctx context.Context) error {
		out, err := t.transcribe(ctx, wf, language)
		text = out
		return err
	}
	if t.guard == nil {
		return text, call(ctx)
	}
	return text, t.guard.Do(ctx, call)
}

func (t *WhisperTranscriber) transcribe(ctx context.Context, wf audio.Waveform, language string) (string, error) {
	wavBytes, err := wf.WAV()
	if err != nil {
		return "", fmt.Errorf("%w: encode wav: %v", voice.ErrTranscriptionFailed, err)
	}
	params := openai.AudioTranscriptionNewParams{
		File:  openai.File(bytes.NewReader(wavBytes), "audio.wav", "audio/wav"),
		Model: t.model,
	}
	if language != "" {
		params.Language = openai.String(language)
	}

	res, err := t.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", voice.ErrTranscriptionFailed, err)
	}
	return strings.TrimSpace(res.Text), nil
}
