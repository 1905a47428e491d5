package mongostore

import (
	"context"
	"errors"
	"time"

	"spray_ledger/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type outboxRepo struct{ repos }

func (r *outboxRepo) Insert(ctx context.Context, m *domain.OutboxMessage) error {
	_, err := r.coll(outboxCollection).InsertOne(ctx, toOutboxDoc(m))
	return translate(err)
}

// FetchPending claims messages one at a time with findAndModify, so two
// workers never receive the same message.
func (r *outboxRepo) FetchPending(ctx context.Context, limit int) ([]domain.OutboxMessage, error) {
	c := r.coll(outboxCollection)
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetReturnDocument(options.After)
	var out []domain.OutboxMessage
	for limit <= 0 || len(out) < limit {
		var doc outboxDoc
		err := c.FindOneAndUpdate(ctx,
			bson.M{"status": string(domain.OutboxPending)},
			bson.M{"$set": bson.M{"status": string(domain.OutboxProcessing)}},
			opts,
		).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, doc.toDomain())
	}
	return out, nil
}

func (r *outboxRepo) MarkProcessed(ctx context.Context, id string) error {
	_, err := r.coll(outboxCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"status":       string(domain.OutboxProcessed),
		"processed_at": time.Now().UTC(),
	}})
	return err
}

// MarkForRetry re-queues the message, parking it as FAILED after too many attempts.
func (r *outboxRepo) MarkForRetry(ctx context.Context, id string) error {
	_, err := r.coll(outboxCollection).UpdateOne(ctx, bson.M{"_id": id}, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"attempts": bson.M{"$add": bson.A{"$attempts", 1}}}}},
		{{Key: "$set", Value: bson.M{"status": bson.M{"$cond": bson.A{
			bson.M{"$gte": bson.A{"$attempts", domain.MaxOutboxAttempts}},
			string(domain.OutboxFailed),
			string(domain.OutboxPending),
		}}}}},
	})
	return err
}
