package middleware

import (
	"net/http"
	"strings"

	"browsepulse/internal/token"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserIDKey is where AuthRequired leaves the authenticated user id.
const UserIDKey = "user_id"

// AuthRequired validates the bearer access token and attaches the caller's
// identity to the request context.
func AuthRequired(tm *token.Manager, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "no token provided"})
			return
		}

		tokenString := strings.TrimPrefix(header, "Bearer ")
		claims, err := tm.ValidateAccess(tokenString)
		if err != nil {
			logger.Debug("Rejected access token", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}
