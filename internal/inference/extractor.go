package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voice-auth/internal/audio"
	"voice-auth/internal/vecmath"
	"voice-auth/internal/voice"

	"github.com/vmihailenco/msgpack/v5"
)

const msgpackContentType = "application/msgpack"

// embedRequest is the body of POST {base}/embed on the embedding sidecar.
type embedRequest struct {
	SampleRate int    `msgpack:"sample_rate"`
	PCM        []byte `msgpack:"pcm"` // s16le mono
}

type embedResponse struct {
	Embedding    []float32 `msgpack:"embedding"`
	ModelVersion string    `msgpack:"model_version"`
	Error        string    `msgpack:"error"`
}

type SidecarConfig struct {
	BaseURL   string
	Dimension int
	// ModelVersion, when set, must match what the sidecar reports.
	ModelVersion string
	Timeout      time.Duration // default: 30s
}

// SidecarExtractor computes speaker embeddings by calling a model server
// over HTTP with msgpack bodies.
type SidecarExtractor struct {
	cfg    SidecarConfig
	client *http.Client
	guard  *Guard
}

func NewSidecarExtractor(cfg SidecarConfig, guard *Guard) *SidecarExtractor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &SidecarExtractor{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		guard:  guard,
	}
}

func (e *SidecarExtractor) Extract(ctx context.Context, wf audio.Waveform) (voice.Embedding, error) {
	var out voice.Embedding
	call := func(ctx context.Context) error {
		emb, err := e.extract(ctx, wf)
		out = emb
		return err
	}
	if e.guard == nil {
		return out, call(ctx)
	}
	return out, e.guard.Do(ctx, call)
}

func (e *SidecarExtractor) extract(ctx context.Context, wf audio.Waveform) (voice.Embedding, error) {
	if len(wf.Samples) == 0 {
		return nil, fmt.Errorf("%w: empty waveform", voice.ErrExtractionFailed)
	}
	body, err := msgpack.Marshal(embedRequest{SampleRate: wf.SampleRate, PCM: wf.PCM()})
	if err != nil {
		return nil, fmt.Errorf("%w: encode request: %v", voice.ErrExtractionFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.cfg.BaseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", voice.ErrExtractionFailed, err)
	}
	req.Header.Set("Content-Type", msgpackContentType)
	req.Header.Set("Accept", msgpackContentType)

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", voice.ErrExtractionFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", voice.ErrExtractionFailed, err)
	}

	var res embedResponse
	if len(raw) > 0 {
		if uerr := msgpack.Unmarshal(raw, &res); uerr != nil && resp.StatusCode == http.StatusOK {
			return nil, fmt.Errorf("%w: decode response: %v", voice.ErrExtractionFailed, uerr)
		}
	}
	if resp.StatusCode != http.StatusOK {
		msg := res.Error
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: sidecar status %d: %s", voice.ErrExtractionFailed, resp.StatusCode, msg)
	}
	if e.cfg.ModelVersion != "" && res.ModelVersion != "" && res.ModelVersion != e.cfg.ModelVersion {
		return nil, fmt.Errorf("%w: model version %q, want %q", voice.ErrExtractionFailed, res.ModelVersion, e.cfg.ModelVersion)
	}
	if len(res.Embedding) != e.cfg.Dimension {
		return nil, fmt.Errorf("%w: embedding dimension %d, want %d", voice.ErrExtractionFailed, len(res.Embedding), e.cfg.Dimension)
	}
	if err := vecmath.CheckFinite(res.Embedding); err != nil {
		return nil, fmt.Errorf("%w: %v", voice.ErrExtractionFailed, err)
	}
	return voice.Embedding(res.Embedding), nil
}
