package application

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// DefaultRedisSequenceKey holds the last issued application number
	DefaultRedisSequenceKey = "social-grant:application:seq"
	defaultCounterID        = "application"
)

// InMemorySequence counts from 1 within the process
type InMemorySequence struct {
	last atomic.Int64
}

func NewInMemorySequence() *InMemorySequence {
	return &InMemorySequence{}
}

func (s *InMemorySequence) Next(ctx context.Context) (int64, error) {
	return s.last.Add(1), nil
}

// PostgresSequence draws numbers from the application_seq sequence
type PostgresSequence struct {
	db DBTX
}

func NewPostgresSequence(db DBTX) *PostgresSequence {
	return &PostgresSequence{db: db}
}

func (s *PostgresSequence) Next(ctx context.Context) (int64, error) {
	var next int64
	if err := s.db.QueryRow(ctx, "SELECT nextval('application_seq')").Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to allocate application number: %w", err)
	}
	return next, nil
}

// RedisSequence uses INCR so every replica shares one counter
type RedisSequence struct {
	client redis.Cmdable
	key    string
}

func NewRedisSequence(client redis.Cmdable, key string) *RedisSequence {
	if key == "" {
		key = DefaultRedisSequenceKey
	}
	return &RedisSequence{client: client, key: key}
}

func (s *RedisSequence) Next(ctx context.Context) (int64, error) {
	next, err := s.client.Incr(ctx, s.key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate application number: %w", err)
	}
	return next, nil
}

// MongoSequence keeps a counter document updated with $inc
type MongoSequence struct {
	counters *mongo.Collection
	id       string
}

func NewMongoSequence(db *mongo.Database) *MongoSequence {
	return &MongoSequence{counters: db.Collection("counters"), id: defaultCounterID}
}

func (s *MongoSequence) Next(ctx context.Context) (int64, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": s.id},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate application number: %w", err)
	}
	return counter.Seq, nil
}
