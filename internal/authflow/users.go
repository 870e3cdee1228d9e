package authflow

import (
	"context"
	"fmt"
	"strings"

	"voice-auth/internal/rbac"
	"voice-auth/internal/voice"
	"voice-auth/pkg/logger"
)

const (
	DefaultUserPageSize = 50
	MaxUserPageSize     = 200
)

// UserPage is one page of an identity listing.
type UserPage struct {
	Users []voice.Identity
	Total int
}

// ListIdentities pages through identities ordered by id. A zero limit
// means DefaultUserPageSize.
func (s *Service) ListIdentities(ctx context.Context, f voice.IdentityFilter) (UserPage, error) {
	switch {
	case f.Limit < 0 || f.Offset < 0:
		return UserPage{}, fmt.Errorf("%w: limit and offset must not be negative", voice.ErrValidation)
	case f.Limit == 0:
		f.Limit = DefaultUserPageSize
	case f.Limit > MaxUserPageSize:
		f.Limit = MaxUserPageSize
	}
	f.Username = strings.TrimSpace(f.Username)
	if f.Role != "" && !rbac.IsKnownRole(f.Role) {
		return UserPage{}, fmt.Errorf("%w: unknown role %q", voice.ErrValidation, f.Role)
	}
	users, total, err := s.d.Store.ListIdentities(ctx, f)
	if err != nil {
		return UserPage{}, err
	}
	if users == nil {
		users = []voice.Identity{}
	}
	return UserPage{Users: users, Total: total}, nil
}

// UpdateRole changes an identity's role. Setting the role it already holds
// is a conflict. Tokens issued before the change keep their old role claim
// until they expire.
func (s *Service) UpdateRole(ctx context.Context, id int64, role string) (voice.Identity, error) {
	if role == "" {
		return voice.Identity{}, fmt.Errorf("%w: role is required", voice.ErrValidation)
	}
	if !rbac.IsKnownRole(role) {
		return voice.Identity{}, fmt.Errorf("%w: unknown role %q", voice.ErrValidation, role)
	}
	current, err := s.d.Store.GetIdentity(ctx, id)
	if err != nil {
		return voice.Identity{}, err
	}
	if current.Role == role {
		return voice.Identity{}, fmt.Errorf("%w: identity %d already has role %q", voice.ErrConflict, id, role)
	}
	updated, err := s.d.Store.UpdateIdentityRole(ctx, id, role)
	if err != nil {
		return voice.Identity{}, err
	}
	logger.From(ctx).Info("identity role changed", "identity_id", id, "from", current.Role, "to", role)
	return updated, nil
}

// DeleteIdentity removes an identity together with its samples and profile.
// Audit events it authored are kept.
func (s *Service) DeleteIdentity(ctx context.Context, id int64) error {
	if err := s.d.Store.DeleteIdentity(ctx, id); err != nil {
		return err
	}
	logger.From(ctx).Info("identity deleted", "identity_id", id)
	return nil
}
