package offline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"roombook/internal/conflict"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"github.com/google/uuid"
)

// Submitter creates the booking server-side once an entry passes the sync
// checks. It is the only write path out of the queue.
type Submitter interface {
	Create(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error)
}

// ConflictChecker re-validates an entry against current server state at sync
// time.
type ConflictChecker interface {
	HasConflict(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error)
}

// DraftValidator is the local schema check run at enqueue time. It is the
// same validator the server runs, so an entry that reaches pending-sync can
// only fail server-side on conflict or availability.
type DraftValidator interface {
	ValidateDraft(draft *model.BookingDraft) error
}

// Listener observes queue mutations. Listeners are invoked synchronously on
// the mutating goroutine, so observers never need to poll.
type Listener func(entry model.QueuedRequest)

// SyncReport summarizes one sync pass.
type SyncReport struct {
	// Coalesced is true when the trigger found a pass already running and
	// did nothing.
	Coalesced bool
	Processed int
	Synced    int
	Conflicts int
	Failed    int
}

// Queue is the client-resident durable queue of draft bookings. Entries move
// pending-validation → pending-sync → syncing → synced/conflict/failed; a
// sync pass replays pending entries through the same conflict check the
// server applies.
type Queue struct {
	store       Store
	submitter   Submitter
	checker     ConflictChecker
	validator   DraftValidator
	maxAttempts int
	logger      *logger.Logger
	now         func() time.Time

	syncing atomic.Bool

	mu           sync.Mutex
	listeners    map[int]Listener
	nextListener int
}

func NewQueue(
	store Store,
	submitter Submitter,
	checker ConflictChecker,
	validator DraftValidator,
	maxAttempts int,
	log *logger.Logger,
) *Queue {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Queue{
		store:       store,
		submitter:   submitter,
		checker:     checker,
		validator:   validator,
		maxAttempts: maxAttempts,
		logger:      log,
		now:         time.Now,
		listeners:   make(map[int]Listener),
	}
}

// WithClock injects the clock. Test hook.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

// Enqueue stores the draft locally and runs the local schema check. A draft
// that passes lands in pending-sync; one that fails lands in failed (terminal,
// never retried) and the validation error is returned alongside the entry.
func (q *Queue) Enqueue(ctx context.Context, draft *model.BookingDraft) (*model.QueuedRequest, error) {
	now := q.now().UTC().Truncate(time.Millisecond)
	entry := &model.QueuedRequest{
		QueueID:   uuid.NewString(),
		Draft:     *draft,
		Status:    model.QueuePendingValidation,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := q.store.Insert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to enqueue draft: %w", err)
	}
	q.publish(entry)

	if err := q.validator.ValidateDraft(&entry.Draft); err != nil {
		entry.Status = model.QueueFailed
		entry.Error = err.Error()
		if updateErr := q.update(ctx, entry); updateErr != nil {
			return entry, updateErr
		}
		return entry, err
	}

	entry.Status = model.QueuePendingSync
	if err := q.update(ctx, entry); err != nil {
		return entry, err
	}

	q.logger.Info("Draft enqueued for sync",
		"queue_id", entry.QueueID,
		"classroom_id", entry.Draft.ClassroomID,
		"date", entry.Draft.Date)

	return entry, nil
}

// Sync replays every eligible entry, FIFO, against current server state.
// Single-flight: a trigger that arrives while a pass is running returns a
// coalesced report instead of queuing a second pass.
func (q *Queue) Sync(ctx context.Context) (*SyncReport, error) {
	if !q.syncing.CompareAndSwap(false, true) {
		return &SyncReport{Coalesced: true}, nil
	}
	defer q.syncing.Store(false)

	entries, err := q.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queue: %w", err)
	}

	report := &SyncReport{}
	for _, entry := range entries {
		if entry.Status == model.QueueSyncing {
			// Only one pass runs at a time, so a syncing entry seen here
			// was stranded by a crash mid-pass. Put it back in line; a
			// submit that did land server-side resurfaces as a conflict.
			entry.Status = model.QueuePendingSync
			if err := q.update(ctx, entry); err != nil {
				q.logger.Error("Failed to recover stranded entry", "queue_id", entry.QueueID, "error", err)
				continue
			}
			q.logger.Warn("Recovered entry stranded in syncing", "queue_id", entry.QueueID)
		}
		if !q.eligible(entry) {
			continue
		}
		report.Processed++

		q.syncOne(ctx, entry)

		switch entry.Status {
		case model.QueueSynced:
			report.Synced++
		case model.QueueConflict:
			report.Conflicts++
		case model.QueueFailed:
			report.Failed++
		}
	}

	if report.Processed > 0 {
		q.logger.Info("Sync pass complete",
			"processed", report.Processed,
			"synced", report.Synced,
			"conflicts", report.Conflicts,
			"failed", report.Failed)
	}

	return report, nil
}

// eligible: pending-sync entries, plus transient failures still under the
// attempt budget. Validation failures never increment attempts and are
// therefore terminal.
func (q *Queue) eligible(entry *model.QueuedRequest) bool {
	switch entry.Status {
	case model.QueuePendingSync:
		return true
	case model.QueueFailed:
		return entry.Attempts > 0 && entry.Attempts < q.maxAttempts
	default:
		return false
	}
}

func (q *Queue) syncOne(ctx context.Context, entry *model.QueuedRequest) {
	entry.Status = model.QueueSyncing
	if err := q.update(ctx, entry); err != nil {
		q.logger.Error("Failed to mark entry syncing", "queue_id", entry.QueueID, "error", err)
		return
	}

	// The entry does not exist server-side yet, so nothing to exclude.
	conflicting, existing, err := q.checker.HasConflict(ctx, conflict.Params{
		ClassroomID:   entry.Draft.ClassroomID,
		Date:          entry.Draft.Date,
		StartTime:     entry.Draft.StartTime,
		EndTime:       entry.Draft.EndTime,
		CheckPastTime: true,
	})
	if err != nil {
		q.settleError(ctx, entry, err)
		return
	}
	if conflicting {
		entry.Status = model.QueueConflict
		entry.ConflictDetails = &model.ConflictDetails{
			Message: fmt.Sprintf(
				"time slot %s-%s on %s overlaps an existing booking (%s-%s)",
				entry.Draft.StartTime, entry.Draft.EndTime, entry.Draft.Date,
				existing.StartTime, existing.EndTime,
			),
		}
		if err := q.update(ctx, entry); err != nil {
			q.logger.Error("Failed to mark entry conflicted", "queue_id", entry.QueueID, "error", err)
		}
		return
	}

	if _, err := q.submitter.Create(ctx, &entry.Draft); err != nil {
		q.settleError(ctx, entry, err)
		return
	}

	entry.Status = model.QueueSynced
	entry.Error = ""
	if err := q.update(ctx, entry); err != nil {
		q.logger.Error("Failed to mark entry synced", "queue_id", entry.QueueID, "error", err)
	}
}

// settleError classifies a sync failure: transient errors stay retry-eligible
// under the attempt budget, everything else is terminal.
func (q *Queue) settleError(ctx context.Context, entry *model.QueuedRequest, cause error) {
	entry.Status = model.QueueFailed
	entry.Error = cause.Error()
	if apperrors.IsTransient(cause) {
		entry.Attempts++
	}

	if err := q.update(ctx, entry); err != nil {
		q.logger.Error("Failed to mark entry failed", "queue_id", entry.QueueID, "error", err)
		return
	}

	q.logger.Warn("Queue entry sync failed",
		"queue_id", entry.QueueID,
		"attempts", entry.Attempts,
		"retryable", apperrors.IsTransient(cause),
		"error", cause)
}

// Remove deletes an entry. Idempotent on missing id.
func (q *Queue) Remove(ctx context.Context, queueID string) error {
	entry, err := q.store.Get(ctx, queueID)
	if err != nil {
		if err == ErrEntryNotFound {
			return nil
		}
		return err
	}

	if err := q.store.Delete(ctx, queueID); err != nil {
		return err
	}
	q.publish(entry)
	return nil
}

// RetryBooking resolves a conflicted or failed entry the human way: the
// entry is removed and its draft handed back so the caller can repopulate a
// fresh submission. Conflicts are never automatically resubmitted.
func (q *Queue) RetryBooking(ctx context.Context, queueID string) (*model.BookingDraft, error) {
	entry, err := q.store.Get(ctx, queueID)
	if err != nil {
		if err == ErrEntryNotFound {
			return nil, apperrors.NotFoundWithID("queue entry", queueID)
		}
		return nil, err
	}

	if entry.Status != model.QueueConflict && entry.Status != model.QueueFailed {
		return nil, apperrors.InvalidInput(
			fmt.Sprintf("queue entry %s is %s; only conflicted or failed entries can be retried", queueID, entry.Status))
	}

	if err := q.store.Delete(ctx, queueID); err != nil {
		return nil, err
	}
	q.publish(entry)

	draft := entry.Draft
	return &draft, nil
}

// RetryFailed puts exhausted failed entries back to pending-sync with a
// fresh attempt budget. Explicit user action, never automatic.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	entries, err := q.store.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list queue: %w", err)
	}

	reset := 0
	for _, entry := range entries {
		if entry.Status != model.QueueFailed {
			continue
		}
		entry.Status = model.QueuePendingSync
		entry.Attempts = 0
		entry.Error = ""
		if err := q.update(ctx, entry); err != nil {
			return reset, err
		}
		reset++
	}
	return reset, nil
}

// List returns all entries FIFO by creation time.
func (q *Queue) List(ctx context.Context) ([]*model.QueuedRequest, error) {
	return q.store.List(ctx)
}

// Subscribe registers a listener for queue mutations and returns its
// unsubscribe function. Listeners run synchronously on the mutating
// goroutine.
func (q *Queue) Subscribe(listener Listener) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextListener
	q.nextListener++
	q.listeners[id] = listener

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.listeners, id)
	}
}

func (q *Queue) update(ctx context.Context, entry *model.QueuedRequest) error {
	entry.UpdatedAt = q.now().UTC().Truncate(time.Millisecond)
	if err := q.store.Update(ctx, entry); err != nil {
		return fmt.Errorf("failed to update queue entry %s: %w", entry.QueueID, err)
	}
	q.publish(entry)
	return nil
}

func (q *Queue) publish(entry *model.QueuedRequest) {
	q.mu.Lock()
	listeners := make([]Listener, 0, len(q.listeners))
	for _, l := range q.listeners {
		listeners = append(listeners, l)
	}
	q.mu.Unlock()

	for _, l := range listeners {
		l(*entry)
	}
}
