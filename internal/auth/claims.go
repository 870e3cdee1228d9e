package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const TokenTypeAccess TokenType = "access"

// Method records how the caller proved their identity.
type Method string

const (
	MethodPassword Method = "password"
	MethodVoice    Method = "voice"
)

// Claims are the only supported JWT claims shape for this service.
// Role gating reads Role; VerifiedAt is the unix time the identity was last
// proven, which may be earlier than IssuedAt.
type Claims struct {
	jwt.RegisteredClaims

	UserID     int64     `json:"user_id"`
	Username   string    `json:"username"`
	Role       string    `json:"role"`
	Method     Method    `json:"amr,omitempty"`
	VerifiedAt int64     `json:"verified_at"`
	TokenType  TokenType `json:"token_type"`
}
