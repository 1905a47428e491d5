package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Config holds provider credentials.
type Config struct {
	BaseURL     string        // e.g. https://seerbitapi.com
	PublicKey   string        // Merchant public key
	BearerToken string        // API bearer token
	CallbackURL string        // Where the payer is sent after checkout
	PocketID    string        // Debit pocket for payouts
	Country     string        // Two letter country code
	Timeout     time.Duration // Per request timeout
}

// HTTPClient is a Client for the Seerbit REST API.
type HTTPClient struct {
	cfg        Config
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient returns a client using cfg.
func NewHTTPClient(cfg Config) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Country == "" {
		cfg.Country = "NG"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type initializeRequest struct {
	PublicKey        string `json:"publicKey"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Country          string `json:"country"`
	PaymentReference string `json:"paymentReference"`
	Email            string `json:"email"`
	CallbackURL      string `json:"callbackUrl"`
}

type initializeResponse struct {
	Status string `json:"status"`
	Data   struct {
		Code     string `json:"code"`
		Message  string `json:"message"`
		Payments struct {
			RedirectLink string `json:"redirectLink"`
		} `json:"payments"`
	} `json:"data"`
}

// InitializePayment creates a hosted checkout for req.
func (c *HTTPClient) InitializePayment(ctx context.Context, req PaymentRequest) (PaymentLink, error) {
	body := initializeRequest{
		PublicKey:        c.cfg.PublicKey,
		Amount:           req.Amount.StringFixed(2),
		Currency:         req.Currency,
		Country:          c.cfg.Country,
		PaymentReference: req.Reference,
		Email:            req.Email,
		CallbackURL:      c.cfg.CallbackURL,
	}
	var resp initializeResponse
	if err := c.post(ctx, "/api/v2/payments", body, &resp); err != nil {
		return PaymentLink{}, err
	}
	link := resp.Data.Payments.RedirectLink
	if link == "" {
		return PaymentLink{}, fmt.Errorf("gateway: no payment link for %s: %s", req.Reference, resp.Data.Message)
	}
	return PaymentLink{URL: link}, nil
}

type transferRequest struct {
	ExtTransactionRef      string `json:"extTransactionRef"`
	PublicKey              string `json:"publicKey"`
	Amount                 string `json:"amount"`
	AccountNumber          string `json:"accountNumber"`
	BankCode               string `json:"bankCode"`
	DebitPocketReferenceID string `json:"debitPocketReferenceId"`
	Type                   string `json:"type"`
	Narration              string `json:"narration,omitempty"`
}

type transferResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Payload struct {
		TransactionID string `json:"transactionId"`
		Status        string `json:"status"`
	} `json:"payload"`
}

// Transfer pays req.Amount out to a bank account.
func (c *HTTPClient) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	body := transferRequest{
		ExtTransactionRef:      req.Reference,
		PublicKey:              c.cfg.PublicKey,
		Amount:                 req.Amount.StringFixed(2),
		AccountNumber:          req.AccountNumber,
		BankCode:               req.BankCode,
		DebitPocketReferenceID: c.cfg.PocketID,
		Type:                   "CREDIT_BANK",
		Narration:              req.Narration,
	}
	var resp transferResponse
	if err := c.post(ctx, "/pocket/api/v2/payout/transfer", body, &resp); err != nil {
		return TransferResult{}, err
	}
	if strings.EqualFold(resp.Payload.Status, "FAILED") {
		return TransferResult{}, fmt.Errorf("gateway: payout %s failed: %s", req.Reference, resp.Message)
	}
	return TransferResult{ProviderReference: resp.Payload.TransactionID, Status: resp.Payload.Status}, nil
}

type banksResponse struct {
	Payload []struct {
		BankCode string `json:"bankCode"`
		BankName string `json:"bankName"`
	} `json:"payload"`
}

// Banks lists payout destination banks.
func (c *HTTPClient) Banks(ctx context.Context) ([]Bank, error) {
	var resp banksResponse
	if err := c.post(ctx, "/pocket/api/v2/payout/banks", map[string]string{"publicKey": c.cfg.PublicKey}, &resp); err != nil {
		return nil, err
	}
	banks := make([]Bank, 0, len(resp.Payload))
	for _, b := range resp.Payload {
		banks = append(banks, Bank{Code: b.BankCode, Name: b.BankName})
	}
	return banks, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("gateway: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("gateway: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gateway: %s: %w", path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("gateway: read %s response: %w", path, err)
	}
	logrus.WithFields(logrus.Fields{
		"path":     path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("gateway call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway: %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("gateway: decode %s response: %w", path, err)
	}
	return nil
}
