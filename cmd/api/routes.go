package main

import (
	"log/slog"

	"voice-auth/internal/httpapi"
	"voice-auth/pkg/logger"

	"github.com/gin-gonic/gin"
)

// newRouter builds the gin engine. Keep this file free of business logic.
func newRouter(log *slog.Logger, a *app) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	httpapi.Register(r, a.handlers, httpapi.RouteOptions{
		Tokens:       a.tokens,
		VoiceLimiter: a.limiter,
	})
	return r
}
