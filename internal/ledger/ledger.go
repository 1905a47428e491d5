// Package ledger is the append-only record of every value movement.
package ledger

import (
	"context"
	"errors"
	"strings"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// idAttempts bounds how often Create draws a new id after a duplicate key.
const idAttempts = 3

// Details describes a value movement to record.
type Details struct {
	Type          domain.TransactionType
	Amount        decimal.Decimal
	Currency      string
	Sender        []string
	Recipient     string
	Reference     string
	PaymentMethod domain.PaymentMethod
	Description   string
	EventCode     string
	Meta          map[string]any
}

// Ledger creates and queries transactions. Methods take the repositories to
// work on, so the same Ledger serves both atomic contexts and plain reads.
type Ledger struct {
	ids      *IDGenerator
	currency string
	now      func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithCurrency sets the currency recorded when Details leaves it empty.
func WithCurrency(currency string) Option {
	return func(l *Ledger) {
		if currency != "" {
			l.currency = strings.ToUpper(currency)
		}
	}
}

// New returns a Ledger backed by ids.
func New(ids *IDGenerator, opts ...Option) *Ledger {
	l := &Ledger{ids: ids, currency: domain.DefaultCurrency, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func gatewayBacked(t domain.TransactionType) bool {
	return t == domain.TransactionFund || t == domain.TransactionPurchase || t == domain.TransactionWithdraw
}

func (l *Ledger) validate(d Details, status domain.PaymentStatus) error {
	if _, ok := d.Type.Prefix(); !ok {
		return domain.Errorf(domain.ErrValidation, "invalid transaction type %q", d.Type)
	}
	if strings.TrimSpace(d.Recipient) == "" {
		return domain.Errorf(domain.ErrValidation, "recipient is required")
	}
	if !domain.Round2(d.Amount).IsPositive() {
		return domain.Errorf(domain.ErrValidation, "amount must be greater than zero")
	}
	if len(d.Sender) == 0 && d.Type != domain.TransactionFund {
		return domain.Errorf(domain.ErrValidation, "sender is required for %s transactions", d.Type)
	}
	if !status.Valid() {
		return domain.Errorf(domain.ErrValidation, "invalid payment status %q", status)
	}
	return nil
}

// Create validates d and persists it with status. Gateway-backed entries
// (FUND, PURCHASE and WITHDRAW) without a reference use their own id as the
// gateway reference.
func (l *Ledger) Create(ctx context.Context, repos store.Repositories, d Details, status domain.PaymentStatus) (domain.Transaction, error) {
	if err := l.validate(d, status); err != nil {
		return domain.Transaction{}, err
	}
	method := d.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodNA
	}
	currency := strings.ToUpper(d.Currency)
	if currency == "" {
		currency = l.currency
	}
	now := l.now().UTC()
	t := domain.Transaction{
		Type:          d.Type,
		Reference:     d.Reference,
		Amount:        domain.Round2(d.Amount),
		Currency:      currency,
		Status:        status,
		PaymentMethod: method,
		Sender:        append([]string{}, d.Sender...),
		Recipient:     d.Recipient,
		Description:   d.Description,
		EventCode:     d.EventCode,
		Meta:          d.Meta,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	var err error
	for attempt := 1; attempt <= idAttempts; attempt++ {
		if t.TransactionID, err = l.ids.New(d.Type); err != nil {
			return domain.Transaction{}, domain.Wrap(domain.ErrInternal, err, "generate transaction id")
		}
		if d.Reference == "" && gatewayBacked(d.Type) {
			t.Reference = t.TransactionID
		}
		err = repos.Transactions().Insert(ctx, &t)
		if !errors.Is(err, domain.ErrDuplicateKey) {
			break
		}
		logrus.WithFields(logrus.Fields{
			"transaction_id": t.TransactionID,
			"attempt":        attempt,
		}).Warn("transaction id collision, drawing a new id")
	}
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.ErrInternal, err, "persist transaction")
	}
	return t, nil
}

// Get looks up a transaction by id.
func (l *Ledger) Get(ctx context.Context, repos store.Repositories, id string) (domain.Transaction, error) {
	t, found, err := repos.Transactions().FindByID(ctx, id)
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.ErrInternal, err, "find transaction")
	}
	if !found {
		return domain.Transaction{}, domain.Errorf(domain.ErrNotFound, "transaction %s not found", id)
	}
	return t, nil
}

// GetByReference looks up a transaction by its gateway reference.
func (l *Ledger) GetByReference(ctx context.Context, repos store.Repositories, reference string) (domain.Transaction, error) {
	t, found, err := repos.Transactions().FindByReference(ctx, reference)
	if err != nil {
		return domain.Transaction{}, domain.Wrap(domain.ErrInternal, err, "find transaction")
	}
	if !found {
		return domain.Transaction{}, domain.Errorf(domain.ErrNotFound, "no transaction with reference %s", reference)
	}
	return t, nil
}

// TransitionStatus moves a transaction from one status to another. It fails
// with ErrNotFound when no transaction with id is in status from.
func (l *Ledger) TransitionStatus(ctx context.Context, repos store.Repositories, id string, from, to domain.PaymentStatus) error {
	if !from.CanTransitionTo(to) {
		return domain.Errorf(domain.ErrInvalidStateTransition, "cannot move transaction from %s to %s", from, to)
	}
	ok, err := repos.Transactions().UpdateStatus(ctx, id, from, to)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "update transaction status")
	}
	if !ok {
		return domain.Errorf(domain.ErrNotFound, "no %s transaction %s", from, id)
	}
	return nil
}

// QueryUserTransactions lists transactions where walletID is a sender or the
// recipient, newest first.
func (l *Ledger) QueryUserTransactions(ctx context.Context, repos store.Repositories, walletID string, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	if walletID == "" {
		return nil, 0, domain.Errorf(domain.ErrValidation, "wallet id is required")
	}
	f.WalletID = walletID
	return l.Query(ctx, repos, f)
}

// Query lists transactions matching f, newest first, with the total count.
func (l *Ledger) Query(ctx context.Context, repos store.Repositories, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	if f.Limit < 0 || f.Offset < 0 {
		return nil, 0, domain.Errorf(domain.ErrValidation, "limit and offset must not be negative")
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, domain.Errorf(domain.ErrValidation, "invalid payment status %q", f.Status)
	}
	txs, total, err := repos.Transactions().List(ctx, f)
	if err != nil {
		return nil, 0, domain.Wrap(domain.ErrInternal, err, "list transactions")
	}
	return txs, total, nil
}
