package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Wallet Model
type Wallet struct {
	ID              string          `json:"wallet_id"`            // Wallet id
	UserID          string          `json:"user_id"`              // Owning user
	Balance         decimal.Decimal `json:"balance"`              // Never negative, 2 fractional digits
	Currency        string          `json:"currency"`             // Wallet currency
	PinHash         string          `json:"-"`                    // Optional bcrypt hash of the access pin
	TransactionRefs []string        `json:"transaction_refs"`     // Ordered ledger references
	CreatedAt       time.Time       `json:"created_at"`           // Creation time
	UpdatedAt       time.Time       `json:"updated_at,omitempty"` // Last balance change
}

// HasPin reports whether an access pin guards debits from the wallet.
func (w Wallet) HasPin() bool {
	return w.PinHash != ""
}

// BalanceAction selects the direction of a balance update.
type BalanceAction string

const (
	Debit  BalanceAction = "debit"
	Credit BalanceAction = "credit"
)

// Valid reports whether a is debit or credit.
func (a BalanceAction) Valid() bool {
	return a == Debit || a == Credit
}
