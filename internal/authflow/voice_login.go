package authflow

import (
	"context"
	"fmt"

	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/identify"
	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"
)

type VoiceLoginRequest struct {
	// PhraseID optionally names the phrase the caller spoke. It is recorded
	// in the audit trail only.
	PhraseID *int64
	Audio    []byte
	IP       string
}

// MatchResult is the outcome of a voice login or identification. Token is
// set only for identify.OutcomeMatch.
type MatchResult struct {
	Outcome    identify.Outcome
	IdentityID int64
	Username   string
	Role       string
	Confidence float64
	Token      string
}

// LoginVoice authenticates the speaker of req.Audio. A voice that matches
// nobody is a normal result, not an error, and is not audited.
func (s *Service) LoginVoice(ctx context.Context, req VoiceLoginRequest) (MatchResult, error) {
	if req.PhraseID != nil {
		if _, err := s.d.Store.GetPhrase(ctx, *req.PhraseID); err != nil {
			return MatchResult{}, err
		}
	}
	details := func(res identify.Result) map[string]any {
		d := map[string]any{"confidence": res.Confidence}
		if req.PhraseID != nil {
			d["phraseId"] = *req.PhraseID
		}
		return d
	}
	return s.matchAndIssue(ctx, req.Audio, req.IP, audit.ActionLoginVoice, details)
}

type IdentifyRequest struct {
	Audio []byte
	IP    string
}

// Identify reports who is speaking. On a match it also issues a credential
// for the matched identity.
func (s *Service) Identify(ctx context.Context, req IdentifyRequest) (MatchResult, error) {
	details := func(res identify.Result) map[string]any {
		return map[string]any{"confidence": res.Confidence}
	}
	return s.matchAndIssue(ctx, req.Audio, req.IP, audit.ActionVoiceIdentify, details)
}

func (s *Service) matchAndIssue(
	ctx context.Context,
	raw []byte,
	ip string,
	action audit.Action,
	details func(identify.Result) map[string]any,
) (MatchResult, error) {
	if len(raw) == 0 {
		return MatchResult{}, fmt.Errorf("%w: audio is required", voice.ErrValidation)
	}

	wf, err := s.d.Decoder.Decode(ctx, raw)
	if err != nil {
		return MatchResult{}, err
	}
	query, err := s.d.Extractor.Extract(ctx, wf)
	if err != nil {
		return MatchResult{}, err
	}
	res, err := s.d.Identifier.Identify(ctx, query)
	if err != nil {
		return MatchResult{}, err
	}

	log := logger.From(ctx)
	if res.Outcome != identify.OutcomeMatch {
		log.Info("voice match rejected", "action", string(action), "outcome", res.Outcome.String(), "confidence", res.Confidence)
		return MatchResult{Outcome: res.Outcome, Confidence: res.Confidence}, nil
	}

	identity, err := s.d.Store.GetIdentity(ctx, res.IdentityID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load matched identity %d: %w", res.IdentityID, err)
	}

	verifiedAt := s.clock().UTC()
	actor := identity.ID
	if err := s.d.Audit.Record(ctx, &actor, action, details(res), ip); err != nil {
		return MatchResult{}, fmt.Errorf("record %s: %w", action, err)
	}

	token, err := s.d.Tokens.IssueAccess(verifiedAt, identity, auth.MethodVoice, verifiedAt)
	if err != nil {
		return MatchResult{}, fmt.Errorf("issue token: %w", err)
	}

	log.Info("voice match accepted", "action", string(action), "identity_id", identity.ID, "confidence", res.Confidence)
	return MatchResult{
		Outcome:    identify.OutcomeMatch,
		IdentityID: identity.ID,
		Username:   identity.Username,
		Role:       identity.Role,
		Confidence: res.Confidence,
		Token:      token,
	}, nil
}
