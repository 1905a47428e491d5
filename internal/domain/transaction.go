package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType classifies a value movement. Each type owns a two letter
// prefix used in generated transaction ids.
type TransactionType string

const (
	TransactionEvent    TransactionType = "EVENT"    // Tips, access fees and event settlements
	TransactionPurchase TransactionType = "PURCHASE" // Product purchases
	TransactionSend     TransactionType = "SEND"     // Wallet to wallet transfers
	TransactionWithdraw TransactionType = "WITHDRAW" // Payouts to a bank account
	TransactionFund     TransactionType = "FUND"     // Top ups settled by the payment gateway
)

// TransactionTypes lists every known type in a stable order.
var TransactionTypes = []TransactionType{
	TransactionEvent,
	TransactionPurchase,
	TransactionSend,
	TransactionWithdraw,
	TransactionFund,
}

// Prefix returns the id prefix bound to the type.
func (t TransactionType) Prefix() (string, bool) {
	switch t {
	case TransactionEvent:
		return "EV", true
	case TransactionPurchase:
		return "PR", true
	case TransactionSend:
		return "SN", true
	case TransactionWithdraw:
		return "WD", true
	case TransactionFund:
		return "FN", true
	}
	return "", false
}

// ParseTransactionType accepts any letter case.
func ParseTransactionType(s string) (TransactionType, error) {
	t := TransactionType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := t.Prefix(); !ok {
		return "", Errorf(ErrValidation, "invalid transaction type %q", s)
	}
	return t, nil
}

// PaymentStatus is the lifecycle state of a transaction.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSuccess   PaymentStatus = "success"
	PaymentCancelled PaymentStatus = "cancelled"
	PaymentFailed    PaymentStatus = "failed"
)

// Valid reports whether s is a recognized payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentSuccess, PaymentCancelled, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentSuccess, PaymentCancelled, PaymentFailed:
		return true
	}
	return false
}

// CanTransitionTo allows exactly the single PENDING to terminal step.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return s == PaymentPending && next.Terminal()
}

// ParsePaymentStatus accepts any letter case.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	st := PaymentStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", Errorf(ErrValidation, "invalid payment status %q", s)
	}
	return st, nil
}

// PaymentMethod records which rail moved the money, if any.
type PaymentMethod string

const (
	PaymentMethodBank PaymentMethod = "bank"
	PaymentMethodCard PaymentMethod = "card"
	PaymentMethodNA   PaymentMethod = "na"
)

// DefaultCurrency is used when a transaction does not name one.
const DefaultCurrency = "NGN"

// Transaction is one immutable ledger entry.
type Transaction struct {
	TransactionID string          `json:"transaction_id"`
	Type          TransactionType `json:"type"`
	Reference     string          `json:"reference,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	Status        PaymentStatus   `json:"status"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Sender        []string        `json:"sender"`    // Wallet ids, empty only for FUND
	Recipient     string          `json:"recipient"` // Wallet id
	Description   string          `json:"description,omitempty"`
	EventCode     string          `json:"event_id,omitempty"`
	Meta          map[string]any  `json:"meta,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Involves reports whether walletID is a sender or the recipient of t.
func (t Transaction) Involves(walletID string) bool {
	if t.Recipient == walletID {
		return true
	}
	for _, s := range t.Sender {
		if s == walletID {
			return true
		}
	}
	return false
}

// TransactionFilter narrows ledger queries. Zero values match everything.
type TransactionFilter struct {
	WalletID string          // Sender or recipient
	Type     TransactionType // Exact type
	Status   PaymentStatus   // Exact status
	From     time.Time       // created_at >= From
	To       time.Time       // created_at <= To
	Limit    int             // 0 means no limit
	Offset   int
}

// Matches applies the filter to a single transaction.
func (f TransactionFilter) Matches(t Transaction) bool {
	if f.WalletID != "" && !t.Involves(f.WalletID) {
		return false
	}
	if f.Type != "" && t.Type != f.Type {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && t.CreatedAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.CreatedAt.After(f.To) {
		return false
	}
	return true
}
