package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "Notifications"
)

var (
	ErrNotificationNotFound = errors.New("notification not found")

	ErrInvalidNotificationID = errors.New("invalid notification ID format")
)

// NotificationStore persists notifications. Acknowledgment is the only
// mutation a notification ever sees.
type NotificationStore interface {
	Insert(ctx context.Context, n *model.Notification) error
	FindByUser(ctx context.Context, userID string, unacknowledgedOnly bool, limit int, offset int64) ([]*model.Notification, int64, error)
	Acknowledge(ctx context.Context, id, userID string) (*model.Notification, error)
	AcknowledgeAll(ctx context.Context, userID string) (int64, error)
}

type mongoNotificationStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoNotificationStore(cfg *config.Config) NotificationStore {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoNotificationStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
	}
}

func (r *mongoNotificationStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func wrapDriverError(op string, err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(fmt.Sprintf("notification store %s timed out", op), err)
	}
	return fmt.Errorf("failed to %s notification: %w", op, err)
}

func (r *mongoNotificationStore) Insert(ctx context.Context, n *model.Notification) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC().Truncate(time.Millisecond)
	}

	result, err := r.collection.InsertOne(ctx, n)
	if err != nil {
		return wrapDriverError("create", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		n.ID = oid.Hex()
	}
	return nil
}

func (r *mongoNotificationStore) FindByUser(ctx context.Context, userID string, unacknowledgedOnly bool, limit int, offset int64) ([]*model.Notification, int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"user_id": userID}
	if unacknowledgedOnly {
		filter["acknowledged_at"] = nil
	}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, wrapDriverError("count", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, wrapDriverError("query", err)
	}
	defer cursor.Close(ctx)

	var notifications []*model.Notification
	if err = cursor.All(ctx, &notifications); err != nil {
		return nil, 0, wrapDriverError("decode", err)
	}

	return notifications, count, nil
}

// Acknowledge is idempotent: acknowledging an already-acknowledged
// notification returns it unchanged with its original timestamp.
func (r *mongoNotificationStore) Acknowledge(ctx context.Context, id, userID string) (*model.Notification, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidNotificationID, id)
	}

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"_id": objectID, "user_id": userID, "acknowledged_at": nil}

	if _, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"acknowledged_at": now}}); err != nil {
		return nil, wrapDriverError("acknowledge", err)
	}

	var n model.Notification
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID, "user_id": userID}).Decode(&n)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotificationNotFound
		}
		return nil, wrapDriverError("find", err)
	}

	return &n, nil
}

func (r *mongoNotificationStore) AcknowledgeAll(ctx context.Context, userID string) (int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	filter := bson.M{"user_id": userID, "acknowledged_at": nil}

	result, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"acknowledged_at": now}})
	if err != nil {
		return 0, wrapDriverError("acknowledge all", err)
	}

	return result.ModifiedCount, nil
}
