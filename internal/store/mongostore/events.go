package mongostore

import (
	"context"
	"regexp"
	"time"

	"spray_ledger/internal/domain"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type eventRepo struct{ repos }

func (r *eventRepo) Insert(ctx context.Context, e *domain.Event) error {
	_, err := r.coll(eventsCollection).InsertOne(ctx, toEventDoc(e))
	return translate(err)
}

func (r *eventRepo) FindByCode(ctx context.Context, code string) (domain.Event, bool, error) {
	var doc eventDoc
	found, err := findOne(ctx, r.coll(eventsCollection), bson.M{"_id": code}, &doc)
	if !found || err != nil {
		return domain.Event{}, found, err
	}
	e, err := doc.toDomain()
	return e, err == nil, err
}

func (r *eventRepo) List(ctx context.Context, f domain.EventFilter) ([]domain.Event, error) {
	filter := bson.M{}
	if f.OwnerID != "" {
		filter["owner_id"] = f.OwnerID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": statusStrings(f.Statuses)}
	}
	if f.Visibility != "" {
		filter["type"] = string(f.Visibility)
	}
	if f.Name != "" {
		filter["name"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Name), Options: "i"}
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}
	cur, err := r.coll(eventsCollection).Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []eventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Event, 0, len(docs))
	for _, doc := range docs {
		e, err := doc.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *eventRepo) IncrementAmount(ctx context.Context, code string, delta decimal.Decimal) (bool, error) {
	res, err := r.coll(eventsCollection).UpdateOne(ctx,
		bson.M{"_id": code, "status": string(domain.EventActive)},
		bson.M{
			"$inc": bson.M{"amount": toD128(delta)},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *eventRepo) UpdateStatus(ctx context.Context, code string, from, to domain.EventStatus, at time.Time) (bool, error) {
	set := bson.M{"status": string(to), "updated_at": at}
	switch {
	case to == domain.EventActive:
		set["started_at"] = at
	case to.Terminal():
		set["finish_time"] = at
	}
	res, err := r.coll(eventsCollection).UpdateOne(ctx, bson.M{"_id": code, "status": string(from)}, bson.M{"$set": set})
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *eventRepo) UpdateDetails(ctx context.Context, e *domain.Event) (bool, error) {
	res, err := r.coll(eventsCollection).UpdateOne(ctx,
		bson.M{"_id": e.Code, "status": string(e.Status)},
		bson.M{"$set": bson.M{
			"name":         e.Name,
			"description":  e.Description,
			"type":         string(e.Visibility),
			"is_scheduled": e.IsScheduled,
			"start_date":   e.StartDate,
			"updated_at":   e.UpdatedAt,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

func (r *eventRepo) Settle(ctx context.Context, code string, expected decimal.Decimal, at time.Time) (bool, error) {
	res, err := r.coll(eventsCollection).UpdateOne(ctx,
		bson.M{
			"_id":    code,
			"status": bson.M{"$in": statusStrings(domain.OpenEventStatuses)},
			"amount": toD128(expected),
		},
		bson.M{"$set": bson.M{
			"amount":      toD128(decimal.Zero),
			"status":      string(domain.EventCompleted),
			"finish_time": at,
			"updated_at":  at,
		}},
	)
	if err != nil {
		return false, err
	}
	return res.MatchedCount == 1, nil
}

// SaveParticipant replaces the participant in place, or appends it when the
// user is not attached yet.
func (r *eventRepo) SaveParticipant(ctx context.Context, code string, p domain.Participant) error {
	c := r.coll(eventsCollection)
	doc := toParticipantDoc(p)
	res, err := c.UpdateOne(ctx,
		bson.M{"_id": code, "participants.user_id": p.UserID},
		bson.M{"$set": bson.M{"participants.$": doc}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	res, err = c.UpdateOne(ctx,
		bson.M{"_id": code, "participants.user_id": bson.M{"$ne": p.UserID}},
		bson.M{"$push": bson.M{"participants": doc}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.Errorf(domain.ErrNotFound, "event %s not found", code)
	}
	return nil
}

func statusStrings(statuses []domain.EventStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
