package authflow

import (
	"context"
	"fmt"

	"voice-auth/internal/enrollment"
	"voice-auth/internal/voice"

	"golang.org/x/sync/errgroup"
)

type Recording struct {
	PhraseID int64
	Audio    []byte
}

// Enroll builds identityID's profile from recordings. The request is fully
// validated before any decoding, and embeddings are extracted concurrently
// outside of any lock; only the final commit is serialized per identity.
func (s *Service) Enroll(ctx context.Context, identityID int64, recordings []Recording) (voice.Profile, error) {
	phraseIDs := make([]int64, len(recordings))
	for i, r := range recordings {
		phraseIDs[i] = r.PhraseID
	}
	if err := s.d.Enroller.ValidateRequest(ctx, phraseIDs); err != nil {
		return voice.Profile{}, err
	}
	for i, r := range recordings {
		if len(r.Audio) == 0 {
			return voice.Profile{}, fmt.Errorf("%w: recording %d has no audio", voice.ErrValidation, i)
		}
	}

	inputs := make([]enrollment.SampleInput, len(recordings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.d.ExtractConcurrency)
	for i, r := range recordings {
		g.Go(func() error {
			emb, err := s.embed(gctx, r.Audio)
			if err != nil {
				return fmt.Errorf("recording %d: %w", i, err)
			}
			inputs[i] = enrollment.SampleInput{PhraseID: r.PhraseID, Embedding: emb, Audio: r.Audio}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return voice.Profile{}, err
	}

	return s.d.Enroller.Enroll(ctx, identityID, inputs)
}

func (s *Service) embed(ctx context.Context, raw []byte) (voice.Embedding, error) {
	wf, err := s.d.Decoder.Decode(ctx, raw)
	if err != nil {
		return nil, err
	}
	return s.d.Extractor.Extract(ctx, wf)
}
