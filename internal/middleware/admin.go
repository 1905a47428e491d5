package middleware

import (
	"net/http" // HTTP status codes

	"spray_ledger/internal/domain" // Roles
	"spray_ledger/internal/store"  // User lookups

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging
)

// AdminOnlyMiddleware checks the user's role on each request. The stored
// user record wins over the token claim once the user is known locally
func AdminOnlyMiddleware(users store.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		role := actor.Role
		stored, found, err := users.Find(c.Request.Context(), domain.UserQuery{ID: actor.ID})
		if err != nil {
			logrus.WithError(err).WithField("user_id", actor.ID).Error("admin check failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if found {
			role = stored.Role // Local record is authoritative
		}
		if role != domain.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Admin access required"})
			return
		}
		c.Next() // Admin, proceed
	}
}
