package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// Notification outcomes.
const (
	NotificationSuccess = "success"
	NotificationFailed  = "failed"
)

// Notification is a settlement callback for a reference created by
// InitializePayment. Delivery is at least once and unordered. Amount
// accepts both a JSON number and a quoted decimal.
type Notification struct {
	Reference string          `json:"reference"`
	Amount    decimal.Decimal `json:"amount"`
	Email     string          `json:"email"`
	Status    string          `json:"status"`
}

// Succeeded reports whether the provider committed the payment.
func (n Notification) Succeeded() bool {
	s := strings.ToLower(n.Status)
	return s == NotificationSuccess || s == "successful" || s == "00"
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(body []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature in constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	want, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return hmac.Equal(h.Sum(nil), want)
}
