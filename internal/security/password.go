// Package security hashes and checks account passwords.
package security

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"voice-auth/internal/voice"

	"golang.org/x/crypto/bcrypt"
)

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 8

// Hasher hashes and verifies passwords with bcrypt. Plaintext passwords are
// never logged or stored.
type Hasher struct {
	cost  int
	dummy []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to the
// range bcrypt accepts. Zero selects bcrypt.DefaultCost.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	dummy, _ := bcrypt.GenerateFromPassword([]byte("unused-account-placeholder"), cost)
	return &Hasher{cost: cost, dummy: dummy}
}

func (h *Hasher) Cost() int { return h.cost }

// Hash validates the password policy and returns a bcrypt hash for storage.
func (h *Hasher) Hash(password string) (string, error) {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return "", fmt.Errorf("%w: password must be at least %d characters", voice.ErrValidation, MinPasswordLength)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", fmt.Errorf("%w: password too long", voice.ErrValidation)
		}
		return "", err
	}
	return string(b), nil
}

// Compare reports nil when password matches hash and
// voice.ErrInvalidCredentials otherwise.
func (h *Hasher) Compare(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return voice.ErrInvalidCredentials
	}
	return nil
}

// CompareMissing burns the same time as Compare for a username that does
// not exist, so response timing does not reveal which accounts exist.
func (h *Hasher) CompareMissing(password string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(password))
}
