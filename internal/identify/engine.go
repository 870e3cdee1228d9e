// Package identify matches a query embedding against every enrolled profile.
package identify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"voice-auth/internal/vecmath"
	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"
)

// DefaultThreshold is the minimum cosine similarity accepted as a match.
const DefaultThreshold = 0.5

// ProfileSource yields the enrolled profiles to scan. A linear scan over all
// rows is the reference; an indexed source may replace it as long as the
// best-above-threshold and tie-break semantics are unchanged.
type ProfileSource interface {
	ListProfiles(ctx context.Context) ([]voice.StoredProfile, error)
}

type Outcome int

const (
	OutcomeMatch Outcome = iota
	OutcomeNoMatch
	OutcomeNoProfiles
)

func (o Outcome) String() string {
	switch o {
	case OutcomeMatch:
		return "match"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeNoProfiles:
		return "no_profiles"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is a typed outcome, not an error: NoMatch and NoProfiles mean the
// engine evaluated the query correctly and found nobody.
type Result struct {
	Outcome    Outcome
	IdentityID int64   // set for OutcomeMatch
	Confidence float64 // best similarity seen; 0 for OutcomeNoProfiles
}

type Config struct {
	Dimension int
	Threshold float64
}

type Engine struct {
	src ProfileSource
	cfg Config
}

func NewEngine(src ProfileSource, cfg Config) (*Engine, error) {
	if src == nil {
		return nil, errors.New("identify: profile source is required")
	}
	if cfg.Dimension <= 0 {
		return nil, errors.New("identify: dimension must be > 0")
	}
	return &Engine{src: src, cfg: cfg}, nil
}

func (e *Engine) Threshold() float64 { return e.cfg.Threshold }

// Identify returns the enrolled identity closest to query.
//
// Profiles are visited in ascending identity id order and only a strictly
// greater similarity replaces the current best, so exact ties resolve to the
// lowest id. Undecodable, wrongly sized or non-finite profiles are logged
// and skipped. A query with a NaN or infinite component is rejected.
func (e *Engine) Identify(ctx context.Context, query voice.Embedding) (Result, error) {
	if err := vecmath.CheckDimension(query, e.cfg.Dimension); err != nil {
		return Result{}, fmt.Errorf("%w: query: %v", voice.ErrDimensionMismatch, err)
	}
	if err := vecmath.CheckFinite(query); err != nil {
		return Result{}, fmt.Errorf("%w: query: %v", voice.ErrNonFiniteEmbedding, err)
	}

	profiles, err := e.src.ListProfiles(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("identify: list profiles: %w", err)
	}
	slices.SortStableFunc(profiles, func(a, b voice.StoredProfile) int {
		switch {
		case a.IdentityID < b.IdentityID:
			return -1
		case a.IdentityID > b.IdentityID:
			return 1
		default:
			return 0
		}
	})

	log := logger.From(ctx)
	var (
		found bool
		best  Result
	)
	for _, p := range profiles {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if p.Err != nil {
			log.Warn("skipping unreadable voice profile", "identity_id", p.IdentityID, "err", p.Err)
			continue
		}
		if len(p.Vector) != p.Dimension || p.Dimension != e.cfg.Dimension {
			log.Warn("skipping voice profile with unexpected dimension",
				"identity_id", p.IdentityID,
				"stored_dimension", p.Dimension,
				"vector_len", len(p.Vector),
				"want", e.cfg.Dimension,
			)
			continue
		}
		sim, err := vecmath.CosineSimilarity(query, p.Vector)
		if err != nil {
			log.Warn("skipping voice profile", "identity_id", p.IdentityID, "err", err)
			continue
		}
		// NaN compares false against everything and would pin the best slot.
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			log.Warn("skipping voice profile with non-finite similarity", "identity_id", p.IdentityID)
			continue
		}
		if !found || sim > best.Confidence {
			found = true
			best = Result{Outcome: OutcomeMatch, IdentityID: p.IdentityID, Confidence: sim}
		}
	}

	if !found {
		return Result{Outcome: OutcomeNoProfiles}, nil
	}
	if best.Confidence < e.cfg.Threshold {
		return Result{Outcome: OutcomeNoMatch, Confidence: best.Confidence}, nil
	}
	return best, nil
}
