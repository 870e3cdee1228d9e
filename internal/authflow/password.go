package authflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/rbac"
	"voice-auth/internal/voice"
)

type LoginResult struct {
	Identity voice.Identity
	Token    string
}

// Login authenticates with username and password.
func (s *Service) Login(ctx context.Context, username, password, ip string) (LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return LoginResult{}, fmt.Errorf("%w: username and password are required", voice.ErrValidation)
	}

	identity, err := s.d.Store.FindIdentityByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, voice.ErrNotFound) {
			s.d.Passwords.CompareMissing(password)
			return LoginResult{}, voice.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}
	if err := s.d.Passwords.Compare(identity.PasswordHash, password); err != nil {
		return LoginResult{}, voice.ErrInvalidCredentials
	}

	now := s.clock().UTC()
	actor := identity.ID
	if err := s.d.Audit.Record(ctx, &actor, audit.ActionLogin, map[string]any{"method": "password"}, ip); err != nil {
		return LoginResult{}, fmt.Errorf("record login: %w", err)
	}
	token, err := s.d.Tokens.IssueAccess(now, identity, auth.MethodPassword, now)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	return LoginResult{Identity: identity, Token: token}, nil
}

// Register creates an identity. Role defaults to viewer.
func (s *Service) Register(ctx context.Context, username, password, role string) (voice.Identity, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return voice.Identity{}, fmt.Errorf("%w: username is required", voice.ErrValidation)
	}
	if role == "" {
		role = voice.RoleViewer
	}
	if !rbac.IsKnownRole(role) {
		return voice.Identity{}, fmt.Errorf("%w: unknown role %q", voice.ErrValidation, role)
	}
	hash, err := s.d.Passwords.Hash(password)
	if err != nil {
		return voice.Identity{}, err
	}
	return s.d.Store.CreateIdentity(ctx, voice.Identity{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
	})
}
