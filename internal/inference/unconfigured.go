package inference

import (
	"context"
	"fmt"

	"voice-auth/internal/audio"
	"voice-auth/internal/voice"
)

// Unconfigured stands in for a collaborator that has no endpoint in this
// environment. Every call fails with a dependency error, so password flows
// keep working on a laptop without the model servers.
type Unconfigured struct {
	Setting string
}

func (u Unconfigured) Extract(context.Context, audio.Waveform) (voice.Embedding, error) {
	return nil, fmt.Errorf("%w: %s is not set", voice.ErrExtractionFailed, u.Setting)
}

func (u Unconfigured) Transcribe(context.Context, audio.Waveform, string) (string, error) {
	return "", fmt.Errorf("%w: %s is not set", voice.ErrTranscriptionFailed, u.Setting)
}
