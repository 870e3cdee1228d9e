package rbac

import (
	"slices"

	"voice-auth/internal/auth"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool
	Reason  string
}

// AccessPolicy decides whether claims satisfy a route's role requirement.
// An empty requirement admits any authenticated caller.
type AccessPolicy interface {
	Check(claims auth.Claims, required ...string) Decision
}

// RolePolicy admits a caller whose role is in the required set. Admins pass
// every check.
type RolePolicy struct{}

func (RolePolicy) Check(claims auth.Claims, required ...string) Decision {
	if claims.Role == "" {
		return Decision{Reason: "role required"}
	}
	if !IsKnownRole(claims.Role) {
		return Decision{Reason: "unknown role"}
	}
	if IsAdmin(claims.Role) || len(required) == 0 || slices.Contains(required, claims.Role) {
		return Decision{Allowed: true}
	}
	return Decision{Reason: "forbidden"}
}
