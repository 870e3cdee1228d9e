package httpapi

import (
	"voice-auth/internal/auth"
	"voice-auth/internal/rbac"

	"github.com/gin-gonic/gin"
)

// RouteOptions carries the middleware the routes need.
type RouteOptions struct {
	Tokens         *auth.Manager
	VoiceLimiter   *IPRateLimiter
	MaxAudioBodyKB int64
}

// Register wires HTTP routes to handlers.
// Keep this free of business logic. Handlers delegate to internal modules.
func Register(r gin.IRouter, h Handlers, opts RouteOptions) {
	requireToken := auth.RequireAccessToken(opts.Tokens)
	optionalToken := auth.OptionalAccessToken(opts.Tokens)

	maxBody := opts.MaxAudioBodyKB
	if maxBody <= 0 {
		maxBody = 16 * 1024
	}
	limitBody := BodyLimit(maxBody * 1024)

	// public
	r.GET("/healthz", h.Healthz)
	r.GET("/phrases", h.ListPhrases)

	authGroup := r.Group("/auth")
	authGroup.Use(limitBody)
	{
		authGroup.POST("/login", h.Login)

		voiceLogin := []gin.HandlerFunc{}
		if opts.VoiceLimiter != nil {
			voiceLogin = append(voiceLogin, opts.VoiceLimiter.Middleware())
		}
		authGroup.POST("/login/voice", append(voiceLogin, h.LoginVoice)...)

		authGroup.POST("/register", requireToken, rbac.RequireAnyRole(rbac.Admins...), h.Register)
	}

	r.POST("/verify", limitBody, optionalToken, h.Verify)

	protected := r.Group("/")
	protected.Use(requireToken, limitBody)
	{
		protected.POST("/identify", h.Identify)
		protected.POST("/enroll", rbac.RequireAnyRole(rbac.Enrollers...), h.Enroll)

		protected.GET("/samples", h.ListSamples)
		protected.POST("/samples", h.AddSample)
		protected.DELETE("/samples/:id", h.DeleteSample)
	}

	admin := r.Group("/admin")
	admin.Use(requireToken, rbac.RequireAnyRole(rbac.Admins...))
	{
		admin.GET("/audit-logs", h.ListAuditLogs)

		admin.GET("/users", h.ListUsers)
		admin.PATCH("/users/:id", limitBody, h.UpdateUserRole)
		admin.DELETE("/users/:id", h.DeleteUser)
	}
}
