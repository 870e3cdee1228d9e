package rbac

import "voice-auth/internal/voice"

// Role sets used by the HTTP routes. Keep these stable; they are part of the
// auth/RBAC contract.
var (
	// Enrollers may (re-)enroll their own voice profile.
	Enrollers = []string{voice.RoleAdmin, voice.RoleDataAnalyst, voice.RoleBusinessUser}
	Admins    = []string{voice.RoleAdmin}
)

func IsAdmin(role string) bool { return role == voice.RoleAdmin }

// IsKnownRole reports whether role is one an identity may hold.
func IsKnownRole(role string) bool {
	switch role {
	case voice.RoleAdmin, voice.RoleDataAnalyst, voice.RoleBusinessUser, voice.RoleViewer:
		return true
	default:
		return false
	}
}
