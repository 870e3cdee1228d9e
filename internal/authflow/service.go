// Package authflow composes decoding, embedding extraction, transcription,
// matching, auditing and token issuance into the end-to-end authentication
// flows.
package authflow

import (
	"context"
	"errors"
	"time"

	"voice-auth/internal/audio"
	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/enrollment"
	"voice-auth/internal/identify"
	"voice-auth/internal/phrase"
	"voice-auth/internal/voice"
)

type Decoder interface {
	Decode(ctx context.Context, data []byte) (audio.Waveform, error)
}

type Extractor interface {
	Extract(ctx context.Context, wf audio.Waveform) (voice.Embedding, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, wf audio.Waveform, language string) (string, error)
}

type TokenIssuer interface {
	IssueAccess(now time.Time, identity voice.Identity, method auth.Method, verifiedAt time.Time) (string, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
	CompareMissing(password string)
}

// Store is the slice of the credential store the flows read and write
// directly. Profiles and enrollment commits go through the engines.
type Store interface {
	CreateIdentity(ctx context.Context, in voice.Identity) (voice.Identity, error)
	GetIdentity(ctx context.Context, id int64) (voice.Identity, error)
	FindIdentityByUsername(ctx context.Context, username string) (voice.Identity, error)
	ListIdentities(ctx context.Context, f voice.IdentityFilter) ([]voice.Identity, int, error)
	UpdateIdentityRole(ctx context.Context, id int64, role string) (voice.Identity, error)
	DeleteIdentity(ctx context.Context, id int64) error

	GetPhrase(ctx context.Context, id int64) (voice.Phrase, error)
	ListPhrases(ctx context.Context) ([]voice.Phrase, error)

	AddSample(ctx context.Context, s voice.Sample) error
	ListSamples(ctx context.Context, identityID int64) ([]voice.Sample, error)
	GetSample(ctx context.Context, id string) (voice.Sample, error)
	DeleteSample(ctx context.Context, id string) error
}

type Deps struct {
	Store      Store
	Enroller   *enrollment.Manager
	Identifier *identify.Engine
	Phrases    *phrase.Verifier
	Audit      *audit.Service

	Decoder     Decoder
	Extractor   Extractor
	Transcriber Transcriber
	Tokens      TokenIssuer
	Passwords   PasswordHasher

	// Language is passed to the transcriber. Default: "en".
	Language string
	// ExtractConcurrency bounds parallel extractions per enrollment.
	// Default: the enrollment sample count.
	ExtractConcurrency int
}

type Service struct {
	d     Deps
	clock func() time.Time
}

func New(d Deps) (*Service, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("authflow: store is required")
	case d.Enroller == nil || d.Identifier == nil || d.Phrases == nil || d.Audit == nil:
		return nil, errors.New("authflow: engines and audit service are required")
	case d.Decoder == nil || d.Extractor == nil || d.Transcriber == nil:
		return nil, errors.New("authflow: decoder, extractor and transcriber are required")
	case d.Tokens == nil || d.Passwords == nil:
		return nil, errors.New("authflow: token issuer and password hasher are required")
	}
	if d.Language == "" {
		d.Language = "en"
	}
	if d.ExtractConcurrency <= 0 {
		d.ExtractConcurrency = d.Enroller.SampleCount()
	}
	return &Service{d: d, clock: time.Now}, nil
}

func (s *Service) ListPhrases(ctx context.Context) ([]voice.Phrase, error) {
	return s.d.Store.ListPhrases(ctx)
}

func (s *Service) SampleCount() int { return s.d.Enroller.SampleCount() }
