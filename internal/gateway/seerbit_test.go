package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitializePayment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/payments", r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		var body initializeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "FN01J0000000000000000000000A", body.PaymentReference)
		assert.Equal(t, "2500.00", body.Amount)
		assert.Equal(t, "NG", body.Country)
		_, _ = w.Write([]byte(`{"status":"SUCCESS","data":{"code":"00","payments":{"redirectLink":"https://pay.example/abc"}}}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(Config{BaseURL: srv.URL + "/", BearerToken: "token"})
	link, err := c.InitializePayment(context.Background(), PaymentRequest{
		Reference: "FN01J0000000000000000000000A",
		Email:     "ada@example.com",
		Amount:    decimal.NewFromInt(2500),
		Currency:  "NGN",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/abc", link.URL)
}

func TestInitializePaymentProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(Config{BaseURL: srv.URL}).InitializePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestTransferFailedPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"SUCCESS","message":"account closed","payload":{"status":"FAILED"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(Config{BaseURL: srv.URL}).Transfer(context.Background(), TransferRequest{Reference: "WD1", Amount: decimal.NewFromInt(5)})
	assert.ErrorContains(t, err, "account closed")
}

func TestBanks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"payload":[{"bankCode":"044","bankName":"Access Bank"}]}`))
	}))
	defer srv.Close()

	banks, err := NewHTTPClient(Config{BaseURL: srv.URL}).Banks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []Bank{{Code: "044", Name: "Access Bank"}}, banks)
}

func TestSignature(t *testing.T) {
	body := []byte(`{"reference":"FN1","amount":"10.00","status":"success"}`)
	sig := Sign(body, "secret")
	assert.True(t, VerifySignature(body, sig, "secret"))
	assert.False(t, VerifySignature(body, sig, "other"))
	assert.False(t, VerifySignature(body, "not-hex", "secret"))
}

func TestNotificationSucceeded(t *testing.T) {
	assert.True(t, Notification{Status: "SUCCESS"}.Succeeded())
	assert.True(t, Notification{Status: "00"}.Succeeded())
	assert.False(t, Notification{Status: "failed"}.Succeeded())
}

func TestNotificationAmountDecoding(t *testing.T) {
	for _, body := range []string{
		`{"reference":"FN1","amount":75.5,"status":"success"}`,
		`{"reference":"FN1","amount":"75.50","status":"success"}`,
	} {
		var n Notification
		require.NoError(t, json.Unmarshal([]byte(body), &n), body)
		assert.Equal(t, "75.50", n.Amount.StringFixed(2), body)
	}
}
