package authflow

import (
	"context"
	"fmt"

	"voice-auth/internal/auth"
	"voice-auth/internal/rbac"
	"voice-auth/internal/voice"

	"github.com/google/uuid"
)

func (s *Service) ListSamples(ctx context.Context, identityID int64) ([]voice.Sample, error) {
	return s.d.Store.ListSamples(ctx, identityID)
}

// AddSample stores a free-form recording with its embedding. The enrolled
// profile is not changed.
func (s *Service) AddSample(ctx context.Context, identityID int64, phraseID *int64, raw []byte) (voice.Sample, error) {
	if len(raw) == 0 {
		return voice.Sample{}, fmt.Errorf("%w: audio is required", voice.ErrValidation)
	}
	if phraseID != nil {
		if _, err := s.d.Store.GetPhrase(ctx, *phraseID); err != nil {
			return voice.Sample{}, err
		}
	}
	emb, err := s.embed(ctx, raw)
	if err != nil {
		return voice.Sample{}, err
	}
	sample := voice.Sample{
		ID:         uuid.NewString(),
		IdentityID: identityID,
		PhraseID:   phraseID,
		Audio:      raw,
		Embedding:  emb,
		CreatedAt:  s.clock().UTC(),
	}
	if err := s.d.Store.AddSample(ctx, sample); err != nil {
		return voice.Sample{}, err
	}
	return sample, nil
}

// DeleteSample removes a sample owned by the caller. Admins may delete any
// sample. The enrolled profile is not changed.
func (s *Service) DeleteSample(ctx context.Context, claims auth.Claims, sampleID string) error {
	sample, err := s.d.Store.GetSample(ctx, sampleID)
	if err != nil {
		return err
	}
	if sample.IdentityID != claims.UserID && !rbac.IsAdmin(claims.Role) {
		return voice.ErrForbidden
	}
	return s.d.Store.DeleteSample(ctx, sampleID)
}
