package api

import (
	"encoding/json" // Notification decoding
	"io"            // Raw body
	"net/http"      // HTTP status codes

	"spray_ledger/internal/coordinator" // Transaction coordinator
	"spray_ledger/internal/gateway"     // Notification format

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// SignatureHeader carries the hex HMAC-SHA256 of the callback body
const SignatureHeader = "X-Signature"

const maxWebhookBody = 64 << 10 // Notifications are tiny

// FundingWebhookHandler applies payment gateway settlement callbacks. With a
// secret configured, unsigned or mis-signed bodies are rejected.
func FundingWebhookHandler(co *coordinator.Coordinator, rdb *redis.Client, secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody)) // Signature covers the raw bytes
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		if secret != "" && !gateway.VerifySignature(body, c.GetHeader(SignatureHeader), secret) {
			logrus.WithField("remote", c.ClientIP()).Warn("Rejected unsigned funding notification")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
			return
		}
		var n gateway.Notification
		if err := json.Unmarshal(body, &n); err != nil || n.Reference == "" || n.Status == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid notification"})
			return
		}
		ctx := c.Request.Context()
		res, err := co.HandleFundingNotification(ctx, n)
		if err != nil {
			respondError(c, err) // Non-2xx asks the provider to redeliver
			return
		}
		if res.Applied {
			forgetTransaction(ctx, co, rdb, "", res.Transaction) // Credited wallet changed
		}
		c.JSON(http.StatusOK, gin.H{
			"applied":     res.Applied,     // False for a redelivery
			"transaction": res.Transaction, // Entry after the callback
		})
	}
}
