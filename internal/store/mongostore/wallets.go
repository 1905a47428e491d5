package mongostore

import (
	"context"
	"errors"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *repos) Find(ctx context.Context, q domain.UserQuery) (domain.User, bool, error) {
	filter := bson.M{}
	switch {
	case q.ID != "":
		filter["_id"] = q.ID
	case q.Username != "":
		filter["username"] = q.Username
	default:
		return domain.User{}, false, nil
	}
	var doc userDoc
	found, err := findOne(ctx, r.coll(usersCollection), filter, &doc)
	return doc.toDomain(), found, err
}

// Upsert refreshes identity fields; wallet_id is only written by SetWalletID.
func (r *repos) Upsert(ctx context.Context, u domain.User) error {
	_, err := r.coll(usersCollection).UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{"$set": bson.M{"username": u.Username, "email": u.Email, "role": u.Role}},
		options.Update().SetUpsert(true),
	)
	return translate(err)
}

func (r *repos) SetWalletID(ctx context.Context, userID, walletID string) error {
	_, err := r.coll(usersCollection).UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{"wallet_id": walletID}})
	return err
}

func (r *repos) List(ctx context.Context, limit, offset int) ([]domain.User, int64, error) {
	c := r.coll(usersCollection)
	total, err := c.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().SetSort(bson.D{{Key: "username", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}
	cur, err := c.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]domain.User, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toDomain())
	}
	return out, total, nil
}

func (r *repos) Create(ctx context.Context, w *domain.Wallet) error {
	_, err := r.coll(walletsCollection).InsertOne(ctx, toWalletDoc(w))
	return translate(err)
}

func (r *repos) FindByID(ctx context.Context, id string) (domain.Wallet, bool, error) {
	return r.findWallet(ctx, bson.M{"_id": id})
}

func (r *repos) FindByUserID(ctx context.Context, userID string) (domain.Wallet, bool, error) {
	return r.findWallet(ctx, bson.M{"user_id": userID})
}

func (r *repos) findWallet(ctx context.Context, filter bson.M) (domain.Wallet, bool, error) {
	var doc walletDoc
	found, err := findOne(ctx, r.coll(walletsCollection), filter, &doc)
	if !found || err != nil {
		return domain.Wallet{}, found, err
	}
	w, err := doc.toDomain()
	return w, err == nil, err
}

func (r *repos) IncrementBalance(ctx context.Context, id string, delta decimal.Decimal) (bool, error) {
	filter := bson.M{"_id": id}
	if delta.IsNegative() {
		filter["balance"] = bson.M{"$gte": toD128(delta.Neg())}
	}
	res, err := r.coll(walletsCollection).UpdateOne(ctx, filter, bson.M{
		"$inc": bson.M{"balance": toD128(delta)},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *repos) AppendTransactionRef(ctx context.Context, id, txID string) (int, error) {
	var doc walletDoc
	err := r.coll(walletsCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$push": bson.M{"transaction_refs": txID}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return len(doc.TransactionRefs), nil
}

func (r *repos) SetPinHash(ctx context.Context, id, hash string) (bool, error) {
	res, err := r.coll(walletsCollection).UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"pin_hash": hash, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}
