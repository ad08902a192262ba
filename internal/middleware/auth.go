package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
)

const accountIDContextKey = "accountID"

func AccountIDFromContext(c *gin.Context) (string, bool) {
	accountID, ok := c.Get(accountIDContextKey)
	if !ok {
		return "", false
	}
	value, ok := accountID.(string)
	return value, ok && value != ""
}

func RequireAuth(cfg auth.TokenConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		claims, err := auth.VerifyToken(parts[1], cfg)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
			c.Abort()
			return
		}

		c.Set(accountIDContextKey, claims.AccountID)
		c.Next()
	}
}
