package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"voice-auth/internal/audit"
	"voice-auth/internal/auth"
	"voice-auth/internal/authflow"
	"voice-auth/internal/identify"
	"voice-auth/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Flow  *authflow.Service
	Audit *audit.Service
	DB    Pinger
}

/* ===================== HEALTH ===================== */

func (h Handlers) Healthz(c *gin.Context) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

/* ===================== PASSWORD AUTH ===================== */

// Login issues an access token for a username and password.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.Flow.Login(c.Request.Context(), req.Username, req.Password, c.ClientIP())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.Token,
		"tokenType":   "Bearer",
		"user":        gin.H{"id": res.Identity.ID, "username": res.Identity.Username, "role": res.Identity.Role},
	})
}

// Register creates an identity. RBAC: admin.
func (h Handlers) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}
	idn, err := h.Flow.Register(c.Request.Context(), req.Username, req.Password, req.Role)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": idn.ID, "username": idn.Username, "role": idn.Role})
}

/* ===================== VOICE ===================== */

// LoginVoice authenticates the speaker. An unrecognized voice is 401 and
// carries the best confidence seen.
func (h Handlers) LoginVoice(c *gin.Context) {
	var req voiceLoginRequest
	if !bindJSON(c, &req) {
		return
	}
	raw, err := decodeAudio("audio", req.Audio)
	if err != nil {
		abortWithError(c, err)
		return
	}
	res, err := h.Flow.LoginVoice(c.Request.Context(), authflow.VoiceLoginRequest{
		PhraseID: req.PhraseID,
		Audio:    raw,
		IP:       c.ClientIP(),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	if res.Outcome != identify.OutcomeMatch {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "voice not recognized", "confidence": res.Confidence})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken": res.Token,
		"tokenType":   "Bearer",
		"confidence":  res.Confidence,
		"user":        gin.H{"id": res.IdentityID, "username": res.Username, "role": res.Role},
	})
}

// Identify reports who is speaking.
func (h Handlers) Identify(c *gin.Context) {
	var req identifyRequest
	if !bindJSON(c, &req) {
		return
	}
	raw, err := decodeAudio("audio", req.Audio)
	if err != nil {
		abortWithError(c, err)
		return
	}
	res, err := h.Flow.Identify(c.Request.Context(), authflow.IdentifyRequest{Audio: raw, IP: c.ClientIP()})
	if err != nil {
		abortWithError(c, err)
		return
	}
	switch res.Outcome {
	case identify.OutcomeNoProfiles:
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no enrolled profiles"})
	case identify.OutcomeNoMatch:
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "voice not recognized", "confidence": res.Confidence})
	default:
		c.JSON(http.StatusOK, gin.H{
			"identityId":  res.IdentityID,
			"username":    res.Username,
			"confidence":  res.Confidence,
			"accessToken": res.Token,
		})
	}
}

// Verify scores a spoken phrase against the challenge text.
func (h Handlers) Verify(c *gin.Context) {
	var req verifyRequest
	if !bindJSON(c, &req) {
		return
	}
	raw, err := decodeAudio("audio", req.Audio)
	if err != nil {
		abortWithError(c, err)
		return
	}
	res, err := h.Flow.VerifyPhrase(c.Request.Context(), authflow.VerifyRequest{
		PhraseID: req.PhraseID,
		Audio:    raw,
		IP:       c.ClientIP(),
	})
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transcript": res.Transcript, "score": res.Score, "match": res.Match})
}

// Enroll replaces the caller's voice profile.
func (h Handlers) Enroll(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req enrollRequest
	if !bindJSON(c, &req) {
		return
	}
	recs := make([]authflow.Recording, len(req.Recordings))
	for i, r := range req.Recordings {
		raw, err := decodeAudio("recordings["+strconv.Itoa(i)+"].audio", r.Audio)
		if err != nil {
			abortWithError(c, err)
			return
		}
		recs[i] = authflow.Recording{PhraseID: r.PhraseID, Audio: raw}
	}
	p, err := h.Flow.Enroll(c.Request.Context(), claims.UserID, recs)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sampleCount": p.SampleCount, "dimension": p.Dimension, "modelVersion": p.ModelVersion})
}

func (h Handlers) ListPhrases(c *gin.Context) {
	phrases, err := h.Flow.ListPhrases(c.Request.Context())
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, phrases)
}

/* ===================== SAMPLES ===================== */

// ListSamples lists the caller's samples. Admins may pass ?identityId=.
func (h Handlers) ListSamples(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	owner := claims.UserID
	if q := c.Query("identityId"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil || id <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "identityId must be a positive integer"})
			return
		}
		if id != owner && !rbac.IsAdmin(claims.Role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		owner = id
	}
	samples, err := h.Flow.ListSamples(c.Request.Context(), owner)
	if err != nil {
		abortWithError(c, err)
		return
	}
	out := make([]sampleResponse, len(samples))
	for i, s := range samples {
		out[i] = toSampleResponse(s)
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) AddSample(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req sampleRequest
	if !bindJSON(c, &req) {
		return
	}
	raw, err := decodeAudio("audio", req.Audio)
	if err != nil {
		abortWithError(c, err)
		return
	}
	s, err := h.Flow.AddSample(c.Request.Context(), claims.UserID, req.PhraseID, raw)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, toSampleResponse(s))
}

func (h Handlers) DeleteSample(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	if err := h.Flow.DeleteSample(c.Request.Context(), claims, c.Param("id")); err != nil {
		abortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

/* ===================== AUDIT ===================== */

// ListAuditLogs pages through the audit trail, newest first. RBAC: admin.
func (h Handlers) ListAuditLogs(c *gin.Context) {
	var f audit.Filter
	if q := c.Query("actorId"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "actorId must be an integer"})
			return
		}
		f.ActorID = &id
	}
	if q := c.Query("action"); q != "" {
		f.Action = audit.Action(q)
		if !f.Action.Valid() {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown action"})
			return
		}
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if q := c.Query(name); q != "" {
			n, err := strconv.Atoi(q)
			if err != nil || n < 0 {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": name + " must be a non-negative integer"})
				return
			}
			*dst = n
		}
	}
	events, err := h.Audit.List(c.Request.Context(), f)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	c.JSON(http.StatusOK, events)
}

/* ===================== HELPERS ===================== */

// BodyLimit caps request bodies at n bytes.
func BodyLimit(n int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, n)
		c.Next()
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return false
	}
	return true
}

func requireClaims(c *gin.Context) (auth.Claims, bool) {
	claims, ok := auth.ClaimsFrom(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	}
	return claims, ok
}
