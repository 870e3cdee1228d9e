// Package voice holds the shared data model and error taxonomy of the voice
// authentication core.
package voice

import (
	"errors"
	"fmt"

	"voice-auth/internal/vecmath"
)

// Error categories. Every error surfaced by the core wraps exactly one of these
// so the HTTP layer can map it to a status code with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrDependency = errors.New("dependency error")
	ErrConflict   = errors.New("conflict")
)

var (
	ErrInvalidSampleCount = fmt.Errorf("%w: invalid sample count", ErrValidation)
	ErrInvalidPhrase      = fmt.Errorf("%w: invalid phrase", ErrValidation)
	ErrDimensionMismatch  = fmt.Errorf("%w: %w", ErrValidation, vecmath.ErrDimensionMismatch)
	ErrNonFiniteEmbedding = fmt.Errorf("%w: %w", ErrValidation, vecmath.ErrNonFinite)
	ErrUnsupportedFormat  = fmt.Errorf("%w: unsupported audio format", ErrValidation)

	ErrDecode              = fmt.Errorf("%w: audio decode failed", ErrDependency)
	ErrExtractionFailed    = fmt.Errorf("%w: embedding extraction failed", ErrDependency)
	ErrTranscriptionFailed = fmt.Errorf("%w: transcription failed", ErrDependency)
	ErrDependencyTimeout   = fmt.Errorf("%w: timeout", ErrDependency)
	ErrDependencyBusy      = fmt.Errorf("%w: no capacity", ErrDependency)

	ErrIdentityNotFound = fmt.Errorf("%w: identity", ErrNotFound)
	ErrPhraseNotFound   = fmt.Errorf("%w: phrase", ErrNotFound)
	ErrSampleNotFound   = fmt.Errorf("%w: sample", ErrNotFound)

	// ErrAtomicEnrollment means the enrollment transaction did not commit;
	// nothing it would have written is visible.
	ErrAtomicEnrollment = errors.New("enrollment not committed")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrForbidden          = errors.New("forbidden")
)
