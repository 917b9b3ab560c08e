package offline

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "OfflineQueue"

// mongoStore gives the queue a durable home for deployments where the
// client is itself a service with a local MongoDB.
type mongoStore struct {
	collection   *mongo.Collection
	readTimeout  time.Duration
	writeTimeout time.Duration
}

func NewMongoStore(db *mongo.Database, readTimeout, writeTimeout time.Duration) Store {
	return &mongoStore{
		collection:   db.Collection(CollectionName),
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
	}
}

func (s *mongoStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func wrapDriverError(op string, err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(fmt.Sprintf("offline store %s timed out", op), err)
	}
	return fmt.Errorf("failed to %s queue entry: %w", op, err)
}

func (s *mongoStore) Insert(ctx context.Context, entry *model.QueuedRequest) error {
	ctx, cancel := s.withTimeout(ctx, s.writeTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, entry); err != nil {
		return wrapDriverError("insert", err)
	}
	return nil
}

func (s *mongoStore) Update(ctx context.Context, entry *model.QueuedRequest) error {
	ctx, cancel := s.withTimeout(ctx, s.writeTimeout)
	defer cancel()

	result, err := s.collection.ReplaceOne(ctx, bson.M{"_id": entry.QueueID}, entry)
	if err != nil {
		return wrapDriverError("update", err)
	}
	if result.MatchedCount == 0 {
		return ErrEntryNotFound
	}
	return nil
}

func (s *mongoStore) Delete(ctx context.Context, queueID string) error {
	ctx, cancel := s.withTimeout(ctx, s.writeTimeout)
	defer cancel()

	// Deleting a missing entry is a no-op.
	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": queueID}); err != nil {
		return wrapDriverError("delete", err)
	}
	return nil
}

func (s *mongoStore) Get(ctx context.Context, queueID string) (*model.QueuedRequest, error) {
	ctx, cancel := s.withTimeout(ctx, s.readTimeout)
	defer cancel()

	var entry model.QueuedRequest
	err := s.collection.FindOne(ctx, bson.M{"_id": queueID}).Decode(&entry)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrEntryNotFound
		}
		return nil, wrapDriverError("find", err)
	}
	return &entry, nil
}

func (s *mongoStore) List(ctx context.Context) ([]*model.QueuedRequest, error) {
	ctx, cancel := s.withTimeout(ctx, s.readTimeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := s.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, wrapDriverError("query", err)
	}
	defer cursor.Close(ctx)

	var entries []*model.QueuedRequest
	if err = cursor.All(ctx, &entries); err != nil {
		return nil, wrapDriverError("decode", err)
	}
	return entries, nil
}
