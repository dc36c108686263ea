package handler

import (
	"net/http"

	"browsepulse/internal/middleware"
	"browsepulse/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter builds the server's HTTP surface.
func NewRouter(tracking *TrackingHandler, auth *AuthHandler, tokens *token.Manager, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/auth/login", auth.Login)
		api.POST("/auth/refresh", auth.Refresh)

		protected := api.Group("/")
		protected.Use(middleware.AuthRequired(tokens, logger))
		{
			protected.POST("/tracking/events", tracking.PostEvents)
		}
	}

	return r
}
