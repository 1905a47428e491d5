// Package gateway talks to the card and bank payment provider.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentRequest asks the provider for a hosted checkout.
type PaymentRequest struct {
	Reference string
	Email     string
	Amount    decimal.Decimal
	Currency  string
}

// PaymentLink is where the payer completes a checkout.
type PaymentLink struct {
	URL string `json:"payment_link"`
}

// TransferRequest pays money out to a bank account.
type TransferRequest struct {
	Reference     string
	Amount        decimal.Decimal
	Currency      string
	BankCode      string
	AccountNumber string
	Narration     string
}

// TransferResult is the provider's acknowledgement of a payout.
type TransferResult struct {
	ProviderReference string
	Status            string
}

// Bank is a payout destination bank.
type Bank struct {
	Code string `json:"bank_code"`
	Name string `json:"bank_name"`
}

// Client is the payment provider. Errors mean the provider could not be
// reached or rejected the request.
type Client interface {
	InitializePayment(ctx context.Context, req PaymentRequest) (PaymentLink, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)
	Banks(ctx context.Context) ([]Bank, error)
}
