// Package gormstore is the MySQL backend built on GORM.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store wraps a *gorm.DB opened with TranslateError enabled
type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates every table of the backend
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(Models()...)
}

// RunInTx implements store.Store
func (s *Store) RunInTx(ctx context.Context, opts store.TxOptions, fn store.TxFunc) error {
	tx := s.db.WithContext(ctx).Begin(&sql.TxOptions{Isolation: opts.Isolation}) // Open the atomic context
	if tx.Error != nil {
		return domain.Wrap(domain.ErrInternal, tx.Error, "begin transaction")
	}
	defer func() {
		// Roll back and re-raise so the panic is not swallowed
		if r := recover(); r != nil {
			rollback(tx)
			panic(r)
		}
	}()
	if err := fn(ctx, &repos{db: tx, locking: true}); err != nil {
		rollback(tx) // Abort; fn's error wins
		return err
	}
	if err := tx.Commit().Error; err != nil {
		return domain.Wrap(domain.ErrInternal, err, "commit transaction")
	}
	return nil
}

func rollback(tx *gorm.DB) {
	if err := tx.Rollback().Error; err != nil && !errors.Is(err, sql.ErrTxDone) {
		logrus.WithError(err).Error("failed to roll back transaction")
	}
}

// Close implements store.Store
func (s *Store) Close(context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Users() store.UserRepository               { return &repos{db: s.db} }
func (s *Store) Wallets() store.WalletRepository           { return &repos{db: s.db} }
func (s *Store) Transactions() store.TransactionRepository { return &txRepo{repos{db: s.db}} }
func (s *Store) Events() store.EventRepository             { return &eventRepo{repos{db: s.db}} }
func (s *Store) Outbox() store.OutboxRepository            { return &outboxRepo{repos{db: s.db}} }

// repos binds repositories to either the pool or an open transaction.
// Reads inside a transaction take row locks.
type repos struct {
	db      *gorm.DB
	locking bool
}

func (r *repos) Users() store.UserRepository               { return r }
func (r *repos) Wallets() store.WalletRepository           { return r }
func (r *repos) Transactions() store.TransactionRepository { return &txRepo{*r} }
func (r *repos) Events() store.EventRepository             { return &eventRepo{*r} }
func (r *repos) Outbox() store.OutboxRepository            { return &outboxRepo{*r} }

func (r *repos) read(ctx context.Context) *gorm.DB {
	q := r.db.WithContext(ctx)
	if r.locking {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"}) // SELECT ... FOR UPDATE
	}
	return q
}

// first loads one row, reporting a missing row as found == false
func first(q *gorm.DB, dest any) (bool, error) {
	err := q.First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, translate(err)
	}
	return true, nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateKey, err)
	}
	return err
}
