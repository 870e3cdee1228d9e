package authflow

import (
	"context"
	"fmt"

	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"
)

type VerifyRequest struct {
	PhraseID int64
	Audio    []byte
	IP       string
}

type VerifyResult struct {
	Transcript string
	Score      float64
	Match      bool
}

// VerifyPhrase checks that req.Audio speaks the requested phrase. It never
// issues a credential. Every scored attempt is audited, pass or fail, with
// the caller as actor when authenticated.
func (s *Service) VerifyPhrase(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if len(req.Audio) == 0 {
		return VerifyResult{}, fmt.Errorf("%w: audio is required", voice.ErrValidation)
	}
	ph, err := s.d.Store.GetPhrase(ctx, req.PhraseID)
	if err != nil {
		return VerifyResult{}, err
	}

	wf, err := s.d.Decoder.Decode(ctx, req.Audio)
	if err != nil {
		return VerifyResult{}, err
	}
	transcript, err := s.d.Transcriber.Transcribe(ctx, wf, s.d.Language)
	if err != nil {
		return VerifyResult{}, err
	}

	res := s.d.Phrases.Verify(transcript, ph.Text)
	out := VerifyResult{Transcript: transcript, Score: res.Score, Match: res.Match}

	details := map[string]any{"phraseId": ph.ID, "score": res.Score, "match": res.Match}
	if err := s.d.Audit.Record(ctx, auth.ActorID(ctx), audit.ActionPhraseVerify, details, req.IP); err != nil {
		logger.From(ctx).Error("phrase_verify audit write failed", "phrase_id", ph.ID, "err", err)
	}
	return out, nil
}
