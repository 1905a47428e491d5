package api

import (
	"errors"   // Kind matching
	"net/http" // HTTP status codes

	"spray_ledger/internal/domain"     // Error taxonomy
	"spray_ledger/internal/middleware" // Authenticated actor

	"github.com/gin-gonic/gin"   // Gin web framework
	"github.com/sirupsen/logrus" // Logging library
)

// statusOf maps an error kind onto the HTTP status returned to clients
func statusOf(err error) int {
	switch kind := domain.KindOf(err); {
	case errors.Is(kind, domain.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(kind, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(kind, domain.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(kind, domain.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(kind, domain.ErrExternalDependency):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as {"error": message}; internal details never leave the process
func respondError(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":  c.FullPath(), // Route that failed
			"error": err.Error(),  // Full cause chain
		}).Error("Request failed")
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": domain.MessageOf(err)})
}

// currentUser fetches the actor or answers 401
func currentUser(c *gin.Context) (domain.User, bool) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	}
	return u, ok
}
