package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// DefaultKVCollection is the collection used by NewKVStore when none is given.
const DefaultKVCollection = "iap_kv"

type kvDocument struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// KVStore persists opaque values by key, one document per key.
// It satisfies iap.Store.
type KVStore struct {
	coll *mongo.Collection
}

// NewKVStore stores values in coll. Panics if coll is nil.
func NewKVStore(coll *mongo.Collection) *KVStore {
	if coll == nil {
		panic("mongo: collection is required")
	}
	return &KVStore{coll: coll}
}

// Get returns nil, nil when the key does not exist.
func (s *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	var doc kvDocument
	err := s.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Join(ErrKVStoreFailed, err)
	}
	return doc.Value, nil
}

// Set upserts the value.
func (s *KVStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M{"value": value, "updated_at": time.Now().UTC()}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return errors.Join(ErrKVStoreFailed, err)
	}
	return nil
}
