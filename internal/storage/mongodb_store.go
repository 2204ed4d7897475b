package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/veya/storefront/internal/metrics"
)

// MongoDBStore keeps attempts in a MongoDB collection.
type MongoDBStore struct {
	client   *mongo.Client
	attempts *mongo.Collection
	metrics  *metrics.Metrics
}

// NewMongoDBStore connects and ensures indexes exist.
func NewMongoDBStore(connectionString, database, collection string, m *metrics.Metrics) (*MongoDBStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	if collection == "" {
		collection = "checkout_attempts"
	}
	s := &MongoDBStore{
		client:   client,
		attempts: client.Database(database).Collection(collection),
		metrics:  m,
	}

	_, err = s.attempts.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create attempt indexes: %w", err)
	}
	return s, nil
}

func (s *MongoDBStore) SaveAttempt(ctx context.Context, a Attempt) error {
	if err := validateAttempt(&a); err != nil {
		return err
	}
	defer metrics.MeasureDBQuery(s.metrics, "save_attempt", "mongodb")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	// created_at is written once, on insert.
	raw, err := bson.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	var fields bson.M
	if err := bson.Unmarshal(raw, &fields); err != nil {
		return fmt.Errorf("encode attempt %s: %w", a.ID, err)
	}
	delete(fields, "_id")
	delete(fields, "created_at")
	update := bson.M{
		"$set":         fields,
		"$setOnInsert": bson.M{"created_at": a.CreatedAt},
	}

	_, err = s.attempts.UpdateOne(ctx, bson.M{"_id": a.ID}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("save attempt %s: %w", a.ID, err)
	}
	return nil
}

func (s *MongoDBStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	defer metrics.MeasureDBQuery(s.metrics, "get_attempt", "mongodb")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	var a Attempt
	err := s.attempts.FindOne(ctx, bson.M{"_id": id}).Decode(&a)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Attempt{}, ErrNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get attempt %s: %w", id, err)
	}
	return a, nil
}

func (s *MongoDBStore) ListAttempts(ctx context.Context, sessionID string, limit int) ([]Attempt, error) {
	defer metrics.MeasureDBQuery(s.metrics, "list_attempts", "mongodb")()
	ctx, cancel := withQueryTimeout(ctx)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.attempts.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]Attempt, 0)
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode attempts: %w", err)
	}
	return out, nil
}

func (s *MongoDBStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
