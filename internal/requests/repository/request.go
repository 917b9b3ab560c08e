package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	requesterrors "roombook/internal/requests/errors"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CollectionName = "BookingRequests"
)

// RequestStore is the persistence contract the lifecycle engine and the
// offline queue share. UpdateStatus is an atomic conditional update keyed
// by request id and the previously-read UpdatedAt.
type RequestStore interface {
	Create(ctx context.Context, req *model.BookingRequest) error
	FindByID(ctx context.Context, id string) (*model.BookingRequest, error)
	FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error)
	FindByClassroomAndDate(ctx context.Context, classroomID, date string, statuses []model.RequestStatus) ([]*model.BookingRequest, error)
	FindByFaculty(ctx context.Context, facultyID string, limit int, offset int64) ([]*model.BookingRequest, int64, error)
	FindPendingStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookingRequest, error)
	UpdateStatus(ctx context.Context, id string, readUpdatedAt time.Time, patch model.StatusPatch) (*model.BookingRequest, error)
	ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error
}

type mongoRequestStore struct {
	cfg        *config.Config
	collection *mongo.Collection
	txManager  mongotx.TransactionManager
}

func NewMongoRequestStore(cfg *config.Config) RequestStore {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoRequestStore{
		cfg:        cfg,
		collection: db.Collection(CollectionName),
		txManager:  mongotx.NewTransactionManager(cfg.Client.Mongo.Client),
	}
}

// withTimeout wraps the context with a timeout if not already in a transaction.
// SessionContext cannot be wrapped without breaking transaction semantics, so
// inside a transaction the original context is returned with a no-op cancel.
func (r *mongoRequestStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.(mongo.SessionContext); ok {
		return ctx, func() {}
	}

	deadline, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return context.WithTimeout(ctx, timeout)
	}

	remaining := time.Until(deadline)
	if remaining < timeout {
		return context.WithTimeout(ctx, remaining)
	}

	return context.WithTimeout(ctx, timeout)
}

// wrapDriverError keeps the taxonomy honest: timeouts and context expiry are
// transient and retry-eligible, everything else surfaces as-is.
func wrapDriverError(op string, err error) error {
	if mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.Transient(fmt.Sprintf("request store %s timed out", op), err)
	}
	return fmt.Errorf("failed to %s booking request: %w", op, err)
}

func (r *mongoRequestStore) Create(ctx context.Context, req *model.BookingRequest) error {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC().Truncate(time.Millisecond)
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = model.StatusPending
	}

	result, err := r.collection.InsertOne(ctx, req)
	if err != nil {
		return wrapDriverError("create", err)
	}

	if oid, ok := result.InsertedID.(primitive.ObjectID); ok {
		req.ID = oid.Hex()
	}
	return nil
}

func (r *mongoRequestStore) FindByID(ctx context.Context, id string) (*model.BookingRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", requesterrors.ErrInvalidID, id)
	}

	var req model.BookingRequest
	err = r.collection.FindOne(ctx, bson.M{"_id": objectID}).Decode(&req)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, requesterrors.ErrNotFound
		}
		return nil, wrapDriverError("find", err)
	}

	return &req, nil
}

func (r *mongoRequestStore) FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
	return r.FindByClassroomAndDate(ctx, classroomID, date, []model.RequestStatus{
		model.StatusPending,
		model.StatusApproved,
	})
}

func (r *mongoRequestStore) FindByClassroomAndDate(
	ctx context.Context,
	classroomID, date string,
	statuses []model.RequestStatus,
) ([]*model.BookingRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{
		"classroom_id": classroomID,
		"date":         date,
	}
	if len(statuses) > 0 {
		filter["status"] = bson.M{"$in": statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "start_time", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapDriverError("query", err)
	}
	defer cursor.Close(ctx)

	var requests []*model.BookingRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, wrapDriverError("decode", err)
	}

	return requests, nil
}

func (r *mongoRequestStore) FindByFaculty(ctx context.Context, facultyID string, limit int, offset int64) ([]*model.BookingRequest, int64, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	filter := bson.M{"faculty_id": facultyID}

	count, err := r.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, wrapDriverError("count", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: -1}, {Key: "start_time", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(offset)

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, wrapDriverError("query", err)
	}
	defer cursor.Close(ctx)

	var requests []*model.BookingRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, 0, wrapDriverError("decode", err)
	}

	return requests, count, nil
}

// FindPendingStartedBefore returns pending requests whose date+start time is
// already behind the cutoff. Dates and times are fixed-width strings, so
// lexicographic comparison in the filter is exact.
func (r *mongoRequestStore) FindPendingStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookingRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.ReadTimeout)
	defer cancel()

	cutoff = cutoff.UTC()
	date := cutoff.Format(model.DateLayout)
	hhmm := cutoff.Format(model.TimeLayout)

	filter := bson.M{
		"status": model.StatusPending,
		"$or": []bson.M{
			{"date": bson.M{"$lt": date}},
			{"date": date, "start_time": bson.M{"$lt": hhmm}},
		},
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, wrapDriverError("query", err)
	}
	defer cursor.Close(ctx)

	var requests []*model.BookingRequest
	if err = cursor.All(ctx, &requests); err != nil {
		return nil, wrapDriverError("decode", err)
	}

	return requests, nil
}

// UpdateStatus applies a lifecycle patch conditionally on the UpdatedAt the
// caller read. A concurrent mutation changes UpdatedAt, the filter matches
// nothing and the caller gets ErrStaleWrite instead of a silent overwrite.
func (r *mongoRequestStore) UpdateStatus(ctx context.Context, id string, readUpdatedAt time.Time, patch model.StatusPatch) (*model.BookingRequest, error) {
	ctx, cancel := r.withTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", requesterrors.ErrInvalidID, id)
	}

	set := bson.M{
		"status":     patch.Status,
		"updated_at": patch.UpdatedAt,
		"updated_by": patch.UpdatedBy,
	}
	if patch.AdminFeedback != "" {
		set["admin_feedback"] = patch.AdminFeedback
	}

	filter := bson.M{"_id": objectID, "updated_at": readUpdatedAt}

	result, err := r.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return nil, wrapDriverError("update", err)
	}

	if result.MatchedCount == 0 {
		// Either the request vanished or someone else won the race.
		if _, findErr := r.FindByID(ctx, id); findErr != nil {
			return nil, findErr
		}
		return nil, requesterrors.ErrStaleWrite
	}

	return r.FindByID(ctx, id)
}

func (r *mongoRequestStore) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	return r.txManager.ExecuteTransaction(ctx, fn)
}
