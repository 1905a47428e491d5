package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"spray_ledger/internal/domain" // Identity projection
	"spray_ledger/internal/utils"  // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// Context keys set by JWTAuthMiddleware
const (
	userKey   = "user"
	userIDKey = "userID"
)

// JWTAuthMiddleware validates bearer tokens issued by the identity service
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization") // Get Authorization header
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}
		tokenStr := strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
		claims, err := utils.ParseJWT(tokenStr, secret)       // Parse the JWT token
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		c.Set(userKey, claims.User())   // Actor for handlers
		c.Set(userIDKey, claims.UserID) // Kept for log fields
		c.Next()                        // Proceed to the next handler
	}
}

// CurrentUser returns the actor authenticated by JWTAuthMiddleware
func CurrentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(userKey)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok && u.ID != ""
}
