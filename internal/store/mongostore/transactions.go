package mongostore

import (
	"context"
	"time"

	"spray_ledger/internal/domain"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type txRepo struct{ repos }

func (r *txRepo) Insert(ctx context.Context, t *domain.Transaction) error {
	_, err := r.coll(transactionsCollection).InsertOne(ctx, toTransactionDoc(t))
	return translate(err)
}

func (r *txRepo) FindByID(ctx context.Context, id string) (domain.Transaction, bool, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *txRepo) FindByReference(ctx context.Context, reference string) (domain.Transaction, bool, error) {
	return r.findOne(ctx, bson.M{"reference": reference})
}

func (r *txRepo) findOne(ctx context.Context, filter bson.M) (domain.Transaction, bool, error) {
	var doc transactionDoc
	found, err := findOne(ctx, r.coll(transactionsCollection), filter, &doc)
	if !found || err != nil {
		return domain.Transaction{}, found, err
	}
	t, err := doc.toDomain()
	return t, err == nil, err
}

func (r *txRepo) UpdateStatus(ctx context.Context, id string, from, to domain.PaymentStatus) (bool, error) {
	res, err := r.coll(transactionsCollection).UpdateOne(ctx,
		bson.M{"_id": id, "status": string(from)},
		bson.M{"$set": bson.M{"status": string(to), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func transactionFilter(f domain.TransactionFilter) bson.M {
	filter := bson.M{}
	if f.WalletID != "" {
		filter["$or"] = bson.A{
			bson.M{"recipient": f.WalletID},
			bson.M{"sender": f.WalletID}, // Matches any element of the array
		}
	}
	if f.Type != "" {
		filter["type"] = string(f.Type)
	}
	if f.Status != "" {
		filter["status"] = string(f.Status)
	}
	created := bson.M{}
	if !f.From.IsZero() {
		created["$gte"] = f.From
	}
	if !f.To.IsZero() {
		created["$lte"] = f.To
	}
	if len(created) > 0 {
		filter["created_at"] = created
	}
	return filter
}

func (r *txRepo) List(ctx context.Context, f domain.TransactionFilter) ([]domain.Transaction, int64, error) {
	c := r.coll(transactionsCollection)
	filter := transactionFilter(f)
	total, err := c.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := c.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []transactionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.Transaction, 0, len(docs))
	for _, doc := range docs {
		t, err := doc.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, nil
}
