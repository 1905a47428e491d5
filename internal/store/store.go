// Package store declares the persistence boundary of the ledger engine.
//
// Every backend exposes the same repositories twice: bound to the plain
// connection for read-only lookups, and bound to an atomic context inside
// RunInTx. Writes that must commit together are only ever issued through the
// Tx handed to the RunInTx callback.
package store

import (
	"context"
	"database/sql"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// TxOptions carries isolation and durability settings for one atomic context.
// Relational backends read Isolation; document backends read the concerns.
type TxOptions struct {
	Isolation    sql.IsolationLevel // e.g. sql.LevelRepeatableRead
	ReadConcern  string             // "snapshot", "majority" or "local"
	WriteConcern string             // "majority" or a node count such as "1"
}

// DefaultTxOptions is snapshot reads with majority-acknowledged writes.
func DefaultTxOptions() TxOptions {
	return TxOptions{
		Isolation:    sql.LevelRepeatableRead,
		ReadConcern:  "snapshot",
		WriteConcern: "majority",
	}
}

// UserRepository is the local view of the identity collaborator.
type UserRepository interface {
	Find(ctx context.Context, q domain.UserQuery) (domain.User, bool, error)
	Upsert(ctx context.Context, u domain.User) error
	SetWalletID(ctx context.Context, userID, walletID string) error
	// List returns a page of users ordered by username, with the total count.
	List(ctx context.Context, limit, offset int) ([]domain.User, int64, error)
}

// WalletRepository persists wallets.
type WalletRepository interface {
	Create(ctx context.Context, w *domain.Wallet) error
	FindByID(ctx context.Context, id string) (domain.Wallet, bool, error)
	FindByUserID(ctx context.Context, userID string) (domain.Wallet, bool, error)
	// IncrementBalance adds delta to the balance. A negative delta is only
	// applied when the current balance covers it. The bool reports whether
	// the wallet was changed.
	IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (bool, error)
	// AppendTransactionRef pushes txID onto the wallet's reference list and
	// returns the new list length, 0 when the wallet did not match.
	AppendTransactionRef(ctx context.Context, id, txID string) (int, error)
	SetPinHash(ctx context.Context, id, hash string) (bool, error)
}

// TransactionRepository persists ledger entries. There is no delete.
type TransactionRepository interface {
	// Insert returns domain.ErrDuplicateKey when the transaction id exists.
	Insert(ctx context.Context, t *domain.Transaction) error
	FindByID(ctx context.Context, id string) (domain.Transaction, bool, error)
	FindByReference(ctx context.Context, reference string) (domain.Transaction, bool, error)
	// UpdateStatus moves a transaction from one status to another and
	// reports whether a transaction in status from was found.
	UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error)
	// List returns matches newest first together with the unpaginated count.
	List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int64, error)
}

// EventRepository persists events and their participants.
type EventRepository interface {
	Insert(ctx context.Context, e *domain.Event) error
	FindByCode(ctx context.Context, code string) (domain.Event, bool, error)
	List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error)
	// IncrementAmount grows the escrow of an ACTIVE event.
	IncrementAmount(ctx context.Context, code string, delta decimal.Decimal) (bool, error)
	// UpdateStatus moves the event from one status to another, stamping
	// started_at when entering ACTIVE and finish_time when entering a
	// terminal status.
	UpdateStatus(ctx context.Context, code string, from, to domain.EventStatus, at time.Time) (bool, error)
	// UpdateDetails writes the editable fields of e (name, description,
	// visibility and schedule), provided the stored event is still in
	// e.Status.
	UpdateDetails(ctx context.Context, e *domain.Event) (bool, error)
	// Settle zeroes the escrow and completes the event, provided it is still
	// open and still holds exactly expected.
	Settle(ctx context.Context, code string, expected decimal.Decimal, at time.Time) (bool, error)
	// SaveParticipant inserts or replaces the participant keyed by user id.
	SaveParticipant(ctx context.Context, code string, p domain.Participant) error
}

// OutboxRepository stores messages awaiting broker delivery.
type OutboxRepository interface {
	Insert(ctx context.Context, m *domain.OutboxMessage) error
	// FetchPending claims up to limit pending messages, oldest first.
	FetchPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error)
	MarkProcessed(ctx context.Context, id string) error
	MarkForRetry(ctx context.Context, id string) error
}

// Repositories groups every repository of a backend.
type Repositories interface {
	Users() UserRepository
	Wallets() WalletRepository
	Transactions() TransactionRepository
	Events() EventRepository
	Outbox() OutboxRepository
}

// Tx is the transaction context capability: repositories whose writes commit
// or abort together.
type Tx interface {
	Repositories
}

// TxFunc is the body of an atomic context. ctx must be used for every call
// made through tx.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a persistence backend.
type Store interface {
	Repositories
	// RunInTx opens an atomic context with opts, runs fn and commits when fn
	// returns nil. Any error or panic aborts the context; abort failures are
	// logged and never replace fn's error. The context is released exactly
	// once on every path.
	RunInTx(ctx context.Context, opts TxOptions, fn TxFunc) error
	Close(ctx context.Context) error
}
