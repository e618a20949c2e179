package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"chat-backend/internal/repositories"
)

// AuthMiddleware resolves the session token against the sessions table and
// attaches the user id and session key to the request context.
func AuthMiddleware(sessionRepo repositories.SessionRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
				return
			}
			key = parts[1]
		}
		if key == "" {
			key, _ = c.Cookie("session_key")
		}
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		session, err := sessionRepo.GetByKey(c.Request.Context(), key)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}

		c.Set("userID", session.UserID)
		c.Set("sessionKey", session.Key)
		c.Next()
	}
}
