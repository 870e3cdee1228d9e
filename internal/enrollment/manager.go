// Package enrollment builds and overwrites voice profiles from a fixed number
// of samples.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voice-auth/internal/audit"
	"voice-auth/internal/vecmath"
	"voice-auth/internal/voice"

	"github.com/google/uuid"
)

// DefaultSampleCount is the number of recordings one enrollment requires.
const DefaultSampleCount = 3

// Commit is everything one enrollment writes. Stores must apply it as a
// single atomic unit, serialized per identity.
type Commit struct {
	IdentityID int64
	Samples    []voice.Sample
	Profile    voice.Profile
	Event      audit.Event
}

// Store is the persistence contract the manager needs.
type Store interface {
	GetPhrase(ctx context.Context, id int64) (voice.Phrase, error)
	CommitEnrollment(ctx context.Context, c Commit) error
}

type Config struct {
	SampleCount  int
	Dimension    int
	ModelVersion string
}

// SampleInput is one submitted recording after embedding extraction.
type SampleInput struct {
	PhraseID  int64
	Embedding voice.Embedding
	Audio     []byte
}

type Manager struct {
	store Store
	audit *audit.Service
	cfg   Config
	clock func() time.Time
}

func NewManager(store Store, auditSvc *audit.Service, cfg Config) (*Manager, error) {
	if store == nil || auditSvc == nil {
		return nil, errors.New("enrollment: store and audit service are required")
	}
	if cfg.SampleCount <= 0 {
		cfg.SampleCount = DefaultSampleCount
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("enrollment: dimension must be > 0")
	}
	return &Manager{store: store, audit: auditSvc, cfg: cfg, clock: time.Now}, nil
}

func (m *Manager) SampleCount() int { return m.cfg.SampleCount }

// ValidateRequest checks the sample count and phrase references. It performs
// reads only, so callers run it before any expensive extraction.
func (m *Manager) ValidateRequest(ctx context.Context, phraseIDs []int64) error {
	if len(phraseIDs) != m.cfg.SampleCount {
		return fmt.Errorf("%w: exactly %d recordings required, got %d", voice.ErrInvalidSampleCount, m.cfg.SampleCount, len(phraseIDs))
	}
	for _, id := range phraseIDs {
		if _, err := m.store.GetPhrase(ctx, id); err != nil {
			if errors.Is(err, voice.ErrNotFound) {
				return fmt.Errorf("%w: phrase %d", voice.ErrInvalidPhrase, id)
			}
			return err
		}
	}
	return nil
}

// Enroll replaces the profile of identityID with the mean of samples and
// appends the samples to the identity's history.
//
// All writes (samples, profile, voice_enroll audit event) commit together or
// not at all.
func (m *Manager) Enroll(ctx context.Context, identityID int64, samples []SampleInput) (voice.Profile, error) {
	phraseIDs := make([]int64, len(samples))
	for i, s := range samples {
		phraseIDs[i] = s.PhraseID
	}
	if err := m.ValidateRequest(ctx, phraseIDs); err != nil {
		return voice.Profile{}, err
	}

	vectors := make([][]float32, len(samples))
	for i, s := range samples {
		if err := vecmath.CheckDimension(s.Embedding, m.cfg.Dimension); err != nil {
			return voice.Profile{}, fmt.Errorf("%w: sample %d: %v", voice.ErrDimensionMismatch, i, err)
		}
		if err := vecmath.CheckFinite(s.Embedding); err != nil {
			return voice.Profile{}, fmt.Errorf("%w: sample %d: %v", voice.ErrNonFiniteEmbedding, i, err)
		}
		vectors[i] = s.Embedding
	}

	mean, err := vecmath.Mean(vectors)
	if err != nil {
		return voice.Profile{}, fmt.Errorf("%w: %v", voice.ErrValidation, err)
	}

	now := m.clock().UTC()
	rows := make([]voice.Sample, len(samples))
	for i, s := range samples {
		phraseID := s.PhraseID
		rows[i] = voice.Sample{
			ID:         uuid.NewString(),
			IdentityID: identityID,
			PhraseID:   &phraseID,
			Audio:      s.Audio,
			Embedding:  s.Embedding,
			CreatedAt:  now,
		}
	}

	profile := voice.Profile{
		IdentityID:   identityID,
		Vector:       mean,
		Dimension:    m.cfg.Dimension,
		ModelVersion: m.cfg.ModelVersion,
		SampleCount:  len(samples),
		UpdatedAt:    now,
	}

	actor := identityID
	ev, err := m.audit.NewEvent(&actor, audit.ActionVoiceEnroll, map[string]any{"sampleCount": len(samples)})
	if err != nil {
		return voice.Profile{}, err
	}

	if err := m.store.CommitEnrollment(ctx, Commit{
		IdentityID: identityID,
		Samples:    rows,
		Profile:    profile,
		Event:      ev,
	}); err != nil {
		if errors.Is(err, voice.ErrNotFound) || errors.Is(err, voice.ErrConflict) {
			return voice.Profile{}, err
		}
		return voice.Profile{}, fmt.Errorf("%w: %w", voice.ErrAtomicEnrollment, err)
	}
	return profile, nil
}
