package repository

import (
	"context"
	"fmt"
	"time"

	requesterrors "roombook/internal/requests/errors"
	"roombook/pkg/config"
	"roombook/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	LockCollectionName = "SlotLocks"

	// TTL-indexed expiry so a crashed holder cannot block a slot forever.
	lockTTL = 10 * time.Second
)

// SlotLockStore hands out advisory locks keyed by classroom+date. Acquire is
// a try-lock: a held lock returns ErrSlotLocked immediately, never blocks.
type SlotLockStore interface {
	Acquire(ctx context.Context, classroomID, date string) (string, error)
	Release(ctx context.Context, lockID string) error
}

type mongoSlotLockStore struct {
	cfg        *config.Config
	collection *mongo.Collection
}

func NewMongoSlotLockStore(cfg *config.Config) SlotLockStore {
	db := cfg.Client.Mongo.Client.Database(cfg.MongoDatabaseName)
	return &mongoSlotLockStore{
		cfg:        cfg,
		collection: db.Collection(LockCollectionName),
	}
}

// Acquire inserts a lock document whose _id encodes the slot coordinates.
// The unique _id constraint is the mutual exclusion point.
func (s *mongoSlotLockStore) Acquire(ctx context.Context, classroomID, date string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	now := time.Now().UTC()
	lock := &model.SlotLock{
		ID:        fmt.Sprintf("slot_lock_%s_%s", classroomID, date),
		ExpiresAt: now.Add(lockTTL),
		CreatedAt: now,
	}

	if _, err := s.collection.InsertOne(ctx, lock); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", requesterrors.ErrSlotLocked
		}
		return "", wrapDriverError("lock slot for", err)
	}

	return lock.ID, nil
}

func (s *mongoSlotLockStore) Release(ctx context.Context, lockID string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if _, err := s.collection.DeleteOne(ctx, bson.M{"_id": lockID}); err != nil {
		return wrapDriverError("unlock slot for", err)
	}
	return nil
}
