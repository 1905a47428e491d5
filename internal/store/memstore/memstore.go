// Package memstore is an in-process store.Store. Atomic contexts work on a
// private copy of the whole dataset that replaces the shared copy on commit;
// contexts are serialized by a single mutex.
package memstore

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"
)

// ErrNoMatch can be returned from a fault hook to make a conditional write
// report that nothing matched instead of failing.
var ErrNoMatch = errors.New("memstore: no match")

// Option configures a Store.
type Option func(*Store)

// WithFault installs a hook called before every write with the operation
// name (for example "wallets.append_ref"). A non-nil error is returned from
// the write as is, except ErrNoMatch which turns into a no-match result.
func WithFault(fn func(op string) error) Option {
	return func(s *Store) {
		s.fault = fn
	}
}

// Store is safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	st    *state
	fault func(op string) error
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{st: newState()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type state struct {
	users        map[string]domain.User
	wallets      map[string]domain.Wallet
	transactions map[string]domain.Transaction
	txOrder      []string
	events       map[string]domain.Event
	outbox       map[string]domain.OutboxMessage
	outboxOrder  []string
}

func newState() *state {
	return &state{
		users:        map[string]domain.User{},
		wallets:      map[string]domain.Wallet{},
		transactions: map[string]domain.Transaction{},
		events:       map[string]domain.Event{},
		outbox:       map[string]domain.OutboxMessage{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:        maps.Clone(s.users),
		wallets:      make(map[string]domain.Wallet, len(s.wallets)),
		transactions: make(map[string]domain.Transaction, len(s.transactions)),
		txOrder:      slices.Clone(s.txOrder),
		events:       make(map[string]domain.Event, len(s.events)),
		outbox:       maps.Clone(s.outbox),
		outboxOrder:  slices.Clone(s.outboxOrder),
	}
	for k, w := range s.wallets {
		c.wallets[k] = copyWallet(w)
	}
	for k, t := range s.transactions {
		c.transactions[k] = copyTransaction(t)
	}
	for k, e := range s.events {
		c.events[k] = copyEvent(e)
	}
	return c
}

func copyWallet(w domain.Wallet) domain.Wallet {
	w.TransactionRefs = slices.Clone(w.TransactionRefs)
	return w
}

func copyTransaction(t domain.Transaction) domain.Transaction {
	t.Sender = slices.Clone(t.Sender)
	t.Meta = maps.Clone(t.Meta)
	return t
}

func copyEvent(e domain.Event) domain.Event {
	e.Participants = slices.Clone(e.Participants)
	return e
}

// RunInTx implements store.Store.
// Aborting drops the working copy, so an error or a panic in fn leaves the
// shared copy untouched.
func (s *Store) RunInTx(ctx context.Context, _ store.TxOptions, fn store.TxFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &repos{s: s, st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Close implements store.Store.
func (s *Store) Close(context.Context) error {
	return nil
}

func (s *Store) Users() store.UserRepository               { return &repos{s: s} }
func (s *Store) Wallets() store.WalletRepository           { return &repos{s: s} }
func (s *Store) Transactions() store.TransactionRepository { return &txRepo{repos{s: s}} }
func (s *Store) Events() store.EventRepository             { return &eventRepo{repos{s: s}} }
func (s *Store) Outbox() store.OutboxRepository            { return &outboxRepo{repos{s: s}} }

// repos binds repository methods either to a transaction's working copy or,
// when st is nil, to the shared copy under the store mutex.
type repos struct {
	s  *Store
	st *state
}

func (r *repos) Users() store.UserRepository               { return r }
func (r *repos) Wallets() store.WalletRepository           { return r }
func (r *repos) Transactions() store.TransactionRepository { return &txRepo{*r} }
func (r *repos) Events() store.EventRepository             { return &eventRepo{*r} }
func (r *repos) Outbox() store.OutboxRepository            { return &outboxRepo{*r} }

func (r *repos) with(fn func(st *state) error) error {
	if r.st != nil {
		return fn(r.st)
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return fn(r.s.st)
}

// inject runs the fault hook. noMatch is true when the hook asked the
// operation to behave as if nothing matched.
func (r *repos) inject(op string) (noMatch bool, err error) {
	if r.s.fault == nil {
		return false, nil
	}
	if err := r.s.fault(op); err != nil {
		if errors.Is(err, ErrNoMatch) {
			return true, nil
		}
		return false, err
	}
	return false, nil
}
