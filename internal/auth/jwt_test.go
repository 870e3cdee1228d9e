package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-auth/internal/config"
	"voice-auth/internal/voice"

	"github.com/gin-gonic/gin"
)

var alice = voice.Identity{ID: 7, Username: "alice", Role: voice.RoleDataAnalyst}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "secret",
		JWTIssuer:      "issuer",
		JWTAudience:    "aud",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	verified := now.Add(-2 * time.Second)

	tok, err := m.IssueAccess(now, alice, MethodVoice, verified)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" || claims.Role != voice.RoleDataAnalyst {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if claims.Method != MethodVoice || claims.VerifiedAt != verified.Unix() {
		t.Fatalf("unexpected verification claims: %+v", claims)
	}
	if claims.Subject != "7" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := newManager(t)
	now := time.Unix(1700000000, 0).UTC()
	tok, err := m.IssueAccess(now, alice, MethodPassword, now)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	if _, err := m.Verify(tok, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expiry error")
	}

	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud"})
	if _, err := other.Verify(tok, TokenTypeAccess, now); err == nil {
		t.Fatalf("expected signature error")
	}

	if _, err := m.Verify(tok, TokenType("refresh"), now); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
}

func TestIssueAccessRequiresRole(t *testing.T) {
	m := newManager(t)
	if _, err := m.IssueAccess(time.Now(), voice.Identity{ID: 1}, MethodPassword, time.Now()); err == nil {
		t.Fatalf("expected error for identity without role")
	}
}

func TestMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newManager(t)
	tok, err := m.IssueAccess(time.Now(), alice, MethodPassword, time.Now())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	handler := func(c *gin.Context) {
		if id := ActorID(c.Request.Context()); id != nil {
			c.JSON(http.StatusOK, gin.H{"actor": *id})
			return
		}
		c.JSON(http.StatusOK, gin.H{"actor": nil})
	}
	r.GET("/required", RequireAccessToken(m), handler)
	r.GET("/optional", OptionalAccessToken(m), handler)

	cases := []struct {
		path   string
		header string
		want   int
	}{
		{"/required", "", http.StatusUnauthorized},
		{"/required", "Bearer garbage", http.StatusUnauthorized},
		{"/required", "Bearer " + tok, http.StatusOK},
		{"/optional", "", http.StatusOK},
		{"/optional", "Bearer garbage", http.StatusUnauthorized},
		{"/optional", "Bearer " + tok, http.StatusOK},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s %q: expected %d, got %d", tc.path, tc.header, tc.want, w.Code)
		}
	}
}
