// Package coordinator runs every multi-step money movement as one atomic
// unit over the wallet store, the ledger and the event escrow.
//
// Each public operation opens exactly one atomic context per step that must
// commit together. A failure anywhere inside aborts the context, so callers
// never observe a partial debit, credit, escrow change or ledger entry.
package coordinator

import (
	"context"
	"errors"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/escrow"
	"spray_ledger/internal/gateway"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store"
	"spray_ledger/internal/wallet"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Locker serializes work on a key across processes.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// Coordinator composes the engine components.
type Coordinator struct {
	store   store.Store
	wallets *wallet.Store
	ledger  *ledger.Ledger
	escrow  *escrow.Escrow
	gateway gateway.Client // Nil disables funding and withdrawals
	locker  Locker         // Nil skips the webhook lock
	txOpts  store.TxOptions
	lockTTL time.Duration
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithGateway sets the payment provider.
func WithGateway(g gateway.Client) Option {
	return func(c *Coordinator) { c.gateway = g }
}

// WithLocker sets the lock used to serialize webhook deliveries per reference.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

// WithTxOptions sets isolation and durability of every atomic context.
func WithTxOptions(opts store.TxOptions) Option {
	return func(c *Coordinator) { c.txOpts = opts }
}

// New returns a Coordinator over st.
func New(st store.Store, wallets *wallet.Store, l *ledger.Ledger, e *escrow.Escrow, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		wallets: wallets,
		ledger:  l,
		escrow:  e,
		txOpts:  store.DefaultTxOptions(),
		lockTTL: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// atomic runs fn in one atomic context and records the outcome of op.
func (c *Coordinator) atomic(ctx context.Context, op string, fn store.TxFunc) error {
	start := time.Now()
	err := c.store.RunInTx(ctx, c.txOpts, fn)
	if err != nil {
		var de *domain.Error
		if !errors.As(err, &de) {
			err = domain.Wrap(domain.ErrInternal, err, "%s", op)
		}
	}
	observe(op, err, time.Since(start))
	return err
}

// record writes a ledger entry and its outbox announcement.
func (c *Coordinator) record(ctx context.Context, tx store.Tx, d ledger.Details, status domain.PaymentStatus) (domain.Transaction, error) {
	t, err := c.ledger.Create(ctx, tx, d, status)
	if err != nil {
		return domain.Transaction{}, err
	}
	if err := announce(ctx, tx, domain.OutboxTransactionRecorded, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

// settleStatus moves a pending entry to a terminal status and announces it.
func (c *Coordinator) settleStatus(ctx context.Context, tx store.Tx, t domain.Transaction, to domain.PaymentStatus) (domain.Transaction, error) {
	if err := c.ledger.TransitionStatus(ctx, tx, t.TransactionID, domain.PaymentPending, to); err != nil {
		return domain.Transaction{}, err
	}
	t.Status = to
	if err := announce(ctx, tx, domain.OutboxTransactionUpdated, t); err != nil {
		return domain.Transaction{}, err
	}
	return t, nil
}

func announce(ctx context.Context, tx store.Tx, kind string, t domain.Transaction) error {
	m, err := domain.NewOutboxMessage(kind, t)
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "encode outbox message")
	}
	if err := tx.Outbox().Insert(ctx, m); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "write outbox message")
	}
	return nil
}

// appendRef records txID on every wallet, in order.
func (c *Coordinator) appendRef(ctx context.Context, tx store.Tx, txID string, walletIDs ...string) error {
	for _, id := range walletIDs {
		if _, err := c.wallets.AppendTransactionRef(ctx, tx, id, txID); err != nil {
			return err
		}
	}
	return nil
}

func positive(amount decimal.Decimal) (decimal.Decimal, error) {
	amount = domain.Round2(amount)
	if !amount.IsPositive() {
		return decimal.Zero, domain.Errorf(domain.ErrValidation, "amount must be greater than zero")
	}
	return amount, nil
}

func logFailure(log *logrus.Entry, err error, msg string) {
	switch domain.KindOf(err) {
	case domain.ErrInternal, domain.ErrLedgerIntegrity, domain.ErrExternalDependency:
		log.WithError(err).Error(msg)
	default:
		log.WithError(err).Info(msg)
	}
}
