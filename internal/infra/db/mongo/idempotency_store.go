package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"rateguard/internal/app/middleware"
)

type IdempotencyStore struct {
	col *mongo.Collection
	now func() time.Time
}

// NewIdempotencyStore relies on a TTL index over expires_at; Get also filters
// expired records since Mongo reaps them lazily.
func NewIdempotencyStore(ctx context.Context, db *mongo.Database) (*IdempotencyStore, error) {
	col := db.Collection("app_idempotency")
	_, err := col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "expires_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
	})
	if err != nil {
		return nil, err
	}
	return &IdempotencyStore{col: col, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *IdempotencyStore) Get(ctx context.Context, key string) (middleware.IdempotencyRecord, bool, error) {
	var doc idempotencyDocument
	if err := s.col.FindOne(ctx, bson.M{"_id": key}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return middleware.IdempotencyRecord{}, false, nil
		}
		return middleware.IdempotencyRecord{}, false, err
	}
	rec := doc.toRecord()
	if rec.Expired(s.now()) {
		return middleware.IdempotencyRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *IdempotencyStore) Save(ctx context.Context, rec middleware.IdempotencyRecord) error {
	doc := idempotencyDocument{
		ID:         rec.Key,
		Command:    rec.Command,
		Payload:    rec.Payload,
		OccurredAt: rec.OccurredAt,
		ExpiresAt:  rec.ExpiresAt,
	}
	_, err := s.col.UpdateByID(ctx, doc.ID, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	return err
}

type idempotencyDocument struct {
	ID         string    `bson:"_id"`
	Command    string    `bson:"command"`
	Payload    []byte    `bson:"payload"`
	OccurredAt time.Time `bson:"occurred_at"`
	ExpiresAt  time.Time `bson:"expires_at,omitempty"`
}

func (d idempotencyDocument) toRecord() middleware.IdempotencyRecord {
	return middleware.IdempotencyRecord{
		Key:        d.ID,
		Command:    d.Command,
		Payload:    d.Payload,
		OccurredAt: d.OccurredAt,
		ExpiresAt:  d.ExpiresAt,
	}
}

var _ middleware.IdempotencyStore = (*IdempotencyStore)(nil)
