package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"roombook/internal/conflict"
	"roombook/internal/notify"
	requesterrors "roombook/internal/requests/errors"
	"roombook/internal/requests/repository"
	"roombook/internal/requests/validator"
	"roombook/pkg/config"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
	"roombook/pkg/sanitizer"

	"go.mongodb.org/mongo-driver/mongo"
)

// Engine owns the booking-request state machine:
//
//	pending  -> approved | rejected | expired
//	approved -> cancelled
//
// rejected, expired and cancelled are terminal. Every mutation goes through
// an optimistic read-then-conditional-write; losing a race surfaces as a
// stale-write error the caller must resolve, never a silent overwrite.
type Engine struct {
	store     repository.RequestStore
	locks     repository.SlotLockStore
	checker   *conflict.Checker
	validator *validator.BookingValidator
	notifier  notify.Dispatcher
	cfg       *config.Config
	now       func() time.Time
}

func NewEngine(
	store repository.RequestStore,
	locks repository.SlotLockStore,
	checker *conflict.Checker,
	bookingValidator *validator.BookingValidator,
	notifier notify.Dispatcher,
	cfg *config.Config,
) *Engine {
	return &Engine{
		store:     store,
		locks:     locks,
		checker:   checker,
		validator: bookingValidator,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// WithClock overrides the engine clock. Meant for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Submit validates a faculty draft and creates it as a pending request.
// The conflict check and the insert run under an advisory classroom+date
// lock: snapshot-isolated transactions each read their own snapshot, so
// without the lock two concurrent submissions for overlapping slots would
// both pass the check and both commit.
func (e *Engine) Submit(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error) {
	e.sanitizeDraft(draft)

	if err := e.validator.ValidateDraft(draft); err != nil {
		e.cfg.Log.Warn("Booking draft validation failed", "faculty_id", draft.FacultyID, "error", err)
		return nil, apperrors.Validation("Booking draft validation failed", map[string]any{"error": err.Error()})
	}

	req := draft.ToRequest()

	lockID, err := e.acquireSlotLock(ctx, draft.ClassroomID, draft.Date)
	if err != nil {
		return nil, err
	}
	defer func() {
		if releaseErr := e.locks.Release(ctx, lockID); releaseErr != nil {
			e.cfg.Log.Warn("Failed to release slot lock", "lock_id", lockID, "error", releaseErr)
		}
	}()

	err = e.store.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		params := conflict.Params{
			ClassroomID:   draft.ClassroomID,
			Date:          draft.Date,
			StartTime:     draft.StartTime,
			EndTime:       draft.EndTime,
			CheckPastTime: true,
		}
		conflicting, existing, err := e.checker.HasConflict(sessCtx, params)
		if err != nil {
			return err
		}
		if conflicting {
			return conflict.ConflictError(params, existing)
		}
		return e.store.Create(sessCtx, req)
	})
	if err != nil {
		e.cfg.Log.Error("Failed to submit booking request",
			"faculty_id", draft.FacultyID,
			"classroom_id", draft.ClassroomID,
			"error", err,
		)
		return nil, err
	}

	e.cfg.Log.Info("Booking request submitted",
		"id", req.ID,
		"classroom_id", req.ClassroomID,
		"date", req.Date,
		"start_time", req.StartTime,
	)
	return req, nil
}

// Approve moves a pending request to approved. Guards: the slot must still
// be conflict-free (excluding the request itself) and must not have started.
func (e *Engine) Approve(ctx context.Context, requestID, feedback, actorID string) (*model.BookingRequest, error) {
	req, err := e.fetch(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != model.StatusPending {
		return nil, apperrors.InvalidTransition(requestID, string(req.Status), string(model.StatusApproved))
	}

	startsAt, err := req.StartsAt()
	if err != nil {
		return nil, apperrors.Internal("stored request has invalid date/time", err)
	}
	if startsAt.Before(e.now().UTC()) {
		return nil, apperrors.Validation("cannot approve a request whose start time has passed", map[string]any{
			"id":         requestID,
			"date":       req.Date,
			"start_time": req.StartTime,
		})
	}

	params := conflict.Params{
		ClassroomID:      req.ClassroomID,
		Date:             req.Date,
		StartTime:        req.StartTime,
		EndTime:          req.EndTime,
		ExcludeRequestID: req.ID,
	}
	conflicting, existing, err := e.checker.HasConflict(ctx, params)
	if err != nil {
		return nil, err
	}
	if conflicting {
		return nil, conflict.ConflictError(params, existing)
	}

	updated, err := e.applyPatch(ctx, req, model.StatusPatch{
		Status:        model.StatusApproved,
		AdminFeedback: feedback,
		UpdatedBy:     actorID,
	})
	if err != nil {
		return nil, err
	}

	e.notifyOwner(ctx, updated, model.NotificationApproved,
		fmt.Sprintf("Your booking for %s on %s %s-%s was approved",
			updated.ClassroomName, updated.Date, updated.StartTime, updated.EndTime),
		feedback, actorID)

	e.cfg.Log.Info("Booking request approved", "id", updated.ID, "actor_id", actorID)
	return updated, nil
}

// Reject moves a pending request to rejected. Feedback is mandatory so the
// requester always learns why.
func (e *Engine) Reject(ctx context.Context, requestID, feedback, actorID string) (*model.BookingRequest, error) {
	if feedback == "" {
		return nil, apperrors.InvalidInput("rejection feedback is required")
	}

	req, err := e.fetch(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != model.StatusPending {
		return nil, apperrors.InvalidTransition(requestID, string(req.Status), string(model.StatusRejected))
	}

	updated, err := e.applyPatch(ctx, req, model.StatusPatch{
		Status:        model.StatusRejected,
		AdminFeedback: feedback,
		UpdatedBy:     actorID,
	})
	if err != nil {
		return nil, err
	}

	e.notifyOwner(ctx, updated, model.NotificationRejected,
		fmt.Sprintf("Your booking for %s on %s %s-%s was rejected: %s",
			updated.ClassroomName, updated.Date, updated.StartTime, updated.EndTime, feedback),
		feedback, actorID)

	e.cfg.Log.Info("Booking request rejected", "id", updated.ID, "actor_id", actorID)
	return updated, nil
}

// CancelApproved revokes an approved reservation. Reason is mandatory.
func (e *Engine) CancelApproved(ctx context.Context, requestID, reason, actorID string) (*model.BookingRequest, error) {
	if reason == "" {
		return nil, apperrors.InvalidInput("cancellation reason is required")
	}

	req, err := e.fetch(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != model.StatusApproved {
		return nil, apperrors.InvalidTransition(requestID, string(req.Status), string(model.StatusCancelled))
	}

	updated, err := e.applyPatch(ctx, req, model.StatusPatch{
		Status:        model.StatusCancelled,
		AdminFeedback: reason,
		UpdatedBy:     actorID,
	})
	if err != nil {
		return nil, err
	}

	e.notifyOwner(ctx, updated, model.NotificationCancelled,
		fmt.Sprintf("Your approved booking for %s on %s %s-%s was cancelled: %s",
			updated.ClassroomName, updated.Date, updated.StartTime, updated.EndTime, reason),
		reason, actorID)

	e.cfg.Log.Info("Approved booking cancelled", "id", updated.ID, "actor_id", actorID)
	return updated, nil
}

// Expire moves a pending request whose start time has passed to expired.
// No notification is emitted.
func (e *Engine) Expire(ctx context.Context, requestID string) (*model.BookingRequest, error) {
	req, err := e.fetch(ctx, requestID)
	if err != nil {
		return nil, err
	}

	if req.Status != model.StatusPending {
		return nil, apperrors.InvalidTransition(requestID, string(req.Status), string(model.StatusExpired))
	}

	startsAt, err := req.StartsAt()
	if err != nil {
		return nil, apperrors.Internal("stored request has invalid date/time", err)
	}
	if !startsAt.Before(e.now().UTC()) {
		return nil, apperrors.Validation("cannot expire a request that has not started yet", map[string]any{
			"id":         requestID,
			"date":       req.Date,
			"start_time": req.StartTime,
		})
	}

	updated, err := e.applyPatch(ctx, req, model.StatusPatch{
		Status:    model.StatusExpired,
		UpdatedBy: "system",
	})
	if err != nil {
		return nil, err
	}

	e.cfg.Log.Info("Booking request expired", "id", updated.ID)
	return updated, nil
}

// PendingExpirable lists pending requests whose start time is already
// behind now. The sweeper feeds these through Expire in bulk.
func (e *Engine) PendingExpirable(ctx context.Context, limit int) ([]*model.BookingRequest, error) {
	return e.store.FindPendingStartedBefore(ctx, e.now().UTC(), limit)
}

func (e *Engine) GetByID(ctx context.Context, requestID string) (*model.BookingRequest, error) {
	return e.fetch(ctx, requestID)
}

func (e *Engine) ListByClassroomAndDate(ctx context.Context, classroomID, date string, statuses []model.RequestStatus) ([]*model.BookingRequest, error) {
	if classroomID == "" || date == "" {
		return nil, apperrors.InvalidInput("classroom ID and date are required")
	}
	return e.store.FindByClassroomAndDate(ctx, classroomID, date, statuses)
}

func (e *Engine) ListByFaculty(ctx context.Context, facultyID string, limit int, offset int64) ([]*model.BookingRequest, int64, error) {
	if facultyID == "" {
		return nil, 0, apperrors.InvalidInput("faculty ID is required")
	}
	return e.store.FindByFaculty(ctx, facultyID, limit, offset)
}

// CheckAvailability is the UX pre-validation path. It runs the exact same
// checker as the write path and reports the collision without writing.
func (e *Engine) CheckAvailability(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error) {
	return e.checker.HasConflict(ctx, p)
}

// --- Helpers ---

func (e *Engine) sanitizeDraft(d *model.BookingDraft) {
	d.FacultyName = sanitizer.TrimAndNormalize(d.FacultyName)
	d.ClassroomName = sanitizer.TrimAndNormalize(d.ClassroomName)
	d.Purpose = sanitizer.TrimAndNormalize(d.Purpose)
}

// acquireSlotLock serializes check-then-create per classroom+date. A held
// lock means another submission for the same classroom and date is mid-flight;
// the caller retries rather than waiting.
func (e *Engine) acquireSlotLock(ctx context.Context, classroomID, date string) (string, error) {
	lockID, err := e.locks.Acquire(ctx, classroomID, date)
	if err != nil {
		if errors.Is(err, requesterrors.ErrSlotLocked) {
			return "", apperrors.Conflict("This time slot is currently being booked by another request. Please try again.")
		}
		return "", apperrors.Internal("Failed to acquire slot lock", err)
	}
	return lockID, nil
}

func (e *Engine) fetch(ctx context.Context, requestID string) (*model.BookingRequest, error) {
	if requestID == "" {
		return nil, apperrors.InvalidInput("booking request ID cannot be empty")
	}

	req, err := e.store.FindByID(ctx, requestID)
	if err != nil {
		return nil, e.mapStoreError(requestID, err)
	}
	return req, nil
}

func (e *Engine) applyPatch(ctx context.Context, req *model.BookingRequest, patch model.StatusPatch) (*model.BookingRequest, error) {
	patch.UpdatedAt = e.now().UTC().Truncate(time.Millisecond)

	updated, err := e.store.UpdateStatus(ctx, req.ID, req.UpdatedAt, patch)
	if err != nil {
		return nil, e.mapStoreError(req.ID, err)
	}
	return updated, nil
}

func (e *Engine) mapStoreError(requestID string, err error) error {
	switch {
	case errors.Is(err, requesterrors.ErrNotFound):
		return apperrors.NotFoundWithID("Booking request", requestID)
	case errors.Is(err, requesterrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid booking request ID format")
	case errors.Is(err, requesterrors.ErrStaleWrite):
		return apperrors.StaleWrite("booking request", requestID)
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal("Request store operation failed", err)
	}
}

// notifyOwner emits the single lifecycle notification. The dispatcher
// suppresses it when the actor is the owner. Delivery failure never fails
// the transition; the write already happened.
func (e *Engine) notifyOwner(ctx context.Context, req *model.BookingRequest, typ model.NotificationType, message, feedback, actorID string) {
	if e.notifier == nil {
		return
	}

	_, err := e.notifier.Notify(ctx, req.FacultyID, typ, message, notify.Options{
		BookingRequestID: req.ID,
		AdminFeedback:    feedback,
		ActorID:          actorID,
	})
	if err != nil {
		e.cfg.Log.Error("Failed to dispatch notification",
			"request_id", req.ID,
			"user_id", req.FacultyID,
			"type", typ,
			"error", err,
		)
	}
}
