package offline

import (
	"context"
	"errors"

	"roombook/pkg/model"
)

// ErrEntryNotFound is returned by Get and Update when no entry has the given
// queue id. Delete is idempotent and never returns it.
var ErrEntryNotFound = errors.New("queue entry not found")

// Store persists queue entries on the client. Implementations must return
// List results FIFO by creation time.
type Store interface {
	Insert(ctx context.Context, entry *model.QueuedRequest) error
	Update(ctx context.Context, entry *model.QueuedRequest) error
	Delete(ctx context.Context, queueID string) error
	Get(ctx context.Context, queueID string) (*model.QueuedRequest, error)
	List(ctx context.Context) ([]*model.QueuedRequest, error)
}
