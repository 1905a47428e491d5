// Package mongostore is the MongoDB backend. Atomic contexts are
// multi-document transactions on a session, so the deployment must be a
// replica set or a sharded cluster.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ store.Store = (*Store)(nil)

// New binds the store to database name on client.
func New(client *mongo.Client, name string) *Store {
	return &Store{client: client, db: client.Database(name)}
}

// EnsureIndexes creates the indexes the repositories rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}},
		},
		walletsCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		transactionsCollection: {
			{Keys: bson.D{{Key: "reference", Value: 1}}},
			{Keys: bson.D{{Key: "recipient", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		eventsCollection: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		outboxCollection: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: 1}}},
		},
	}
	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// RunInTx implements store.Store.
func (s *Store) RunInTx(ctx context.Context, opts store.TxOptions, fn store.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return domain.Wrap(domain.ErrInternal, err, "start session")
	}
	defer sess.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readConcern(opts.ReadConcern)).
		SetWriteConcern(writeConcern(opts.WriteConcern))
	if err := sess.StartTransaction(txOpts); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "start transaction")
	}
	sc := mongo.NewSessionContext(ctx, sess)

	defer func() {
		if r := recover(); r != nil {
			abort(sc, sess)
			panic(r)
		}
	}()
	if err := fn(sc, &repos{db: s.db}); err != nil {
		abort(sc, sess)
		return err
	}
	if err := sess.CommitTransaction(sc); err != nil {
		return domain.Wrap(domain.ErrInternal, err, "commit transaction")
	}
	return nil
}

func abort(ctx context.Context, sess mongo.Session) {
	// The caller's context may already be cancelled; abort regardless.
	if err := sess.AbortTransaction(context.WithoutCancel(ctx)); err != nil {
		logrus.WithError(err).Error("failed to abort transaction")
	}
}

func readConcern(level string) *readconcern.ReadConcern {
	switch level {
	case "majority":
		return readconcern.Majority()
	case "local":
		return readconcern.Local()
	default:
		return readconcern.Snapshot()
	}
}

func writeConcern(w string) *writeconcern.WriteConcern {
	if n, err := strconv.Atoi(w); err == nil && n > 0 {
		return &writeconcern.WriteConcern{W: n}
	}
	return writeconcern.Majority()
}

// Close implements store.Store.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) Users() store.UserRepository               { return &repos{db: s.db} }
func (s *Store) Wallets() store.WalletRepository           { return &repos{db: s.db} }
func (s *Store) Transactions() store.TransactionRepository { return &txRepo{repos{db: s.db}} }
func (s *Store) Events() store.EventRepository             { return &eventRepo{repos{db: s.db}} }
func (s *Store) Outbox() store.OutboxRepository            { return &outboxRepo{repos{db: s.db}} }

// repos is stateless; inside RunInTx the session travels in ctx.
type repos struct {
	db *mongo.Database
}

func (r *repos) Users() store.UserRepository               { return r }
func (r *repos) Wallets() store.WalletRepository           { return r }
func (r *repos) Transactions() store.TransactionRepository { return &txRepo{*r} }
func (r *repos) Events() store.EventRepository             { return &eventRepo{*r} }
func (r *repos) Outbox() store.OutboxRepository            { return &outboxRepo{*r} }

func (r *repos) coll(name string) *mongo.Collection {
	return r.db.Collection(name)
}

// findOne decodes a single document, reporting a miss as found == false.
func findOne(ctx context.Context, c *mongo.Collection, filter any, dest any) (bool, error) {
	err := c.FindOne(ctx, filter).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func translate(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %v", domain.ErrDuplicateKey, err)
	}
	return err
}
