package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"roombook/internal/conflict"
	"roombook/internal/notify"
	requesterrors "roombook/internal/requests/errors"
	"roombook/internal/requests/validator"
	"roombook/pkg/config"
	mongotx "roombook/pkg/db/mongo"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"

	"go.mongodb.org/mongo-driver/mongo"
)

// fakeStore is an in-memory RequestStore. UpdateStatus honors the
// conditional-write contract so stale writes behave like the real store.
type fakeStore struct {
	requests   map[string]*model.BookingRequest
	nextID     int
	forceStale bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{requests: make(map[string]*model.BookingRequest)}
}

func (s *fakeStore) Create(_ context.Context, req *model.BookingRequest) error {
	s.nextID++
	req.ID = fmt.Sprintf("req-%d", s.nextID)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = model.StatusPending
	}
	clone := *req
	s.requests[req.ID] = &clone
	return nil
}

func (s *fakeStore) FindByID(_ context.Context, id string) (*model.BookingRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, requesterrors.ErrNotFound
	}
	clone := *req
	return &clone, nil
}

func (s *fakeStore) FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
	return s.FindByClassroomAndDate(ctx, classroomID, date, []model.RequestStatus{
		model.StatusPending,
		model.StatusApproved,
	})
}

func (s *fakeStore) FindByClassroomAndDate(_ context.Context, classroomID, date string, statuses []model.RequestStatus) ([]*model.BookingRequest, error) {
	var out []*model.BookingRequest
	for _, req := range s.requests {
		if req.ClassroomID != classroomID || req.Date != date {
			continue
		}
		if len(statuses) > 0 {
			match := false
			for _, st := range statuses {
				if req.Status == st {
					match = true
					break
				}
			}
			if !match {
				continue
			}
		}
		clone := *req
		out = append(out, &clone)
	}
	return out, nil
}

func (s *fakeStore) FindByFaculty(_ context.Context, facultyID string, _ int, _ int64) ([]*model.BookingRequest, int64, error) {
	var out []*model.BookingRequest
	for _, req := range s.requests {
		if req.FacultyID == facultyID {
			clone := *req
			out = append(out, &clone)
		}
	}
	return out, int64(len(out)), nil
}

func (s *fakeStore) FindPendingStartedBefore(_ context.Context, cutoff time.Time, limit int) ([]*model.BookingRequest, error) {
	var out []*model.BookingRequest
	for _, req := range s.requests {
		if req.Status != model.StatusPending {
			continue
		}
		startsAt, err := req.StartsAt()
		if err != nil {
			continue
		}
		if startsAt.Before(cutoff) {
			clone := *req
			out = append(out, &clone)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(_ context.Context, id string, readUpdatedAt time.Time, patch model.StatusPatch) (*model.BookingRequest, error) {
	req, ok := s.requests[id]
	if !ok {
		return nil, requesterrors.ErrNotFound
	}
	if s.forceStale || !req.UpdatedAt.Equal(readUpdatedAt) {
		return nil, requesterrors.ErrStaleWrite
	}
	req.Status = patch.Status
	req.UpdatedAt = patch.UpdatedAt
	req.UpdatedBy = patch.UpdatedBy
	if patch.AdminFeedback != "" {
		req.AdminFeedback = patch.AdminFeedback
	}
	clone := *req
	return &clone, nil
}

func (s *fakeStore) ExecuteTransaction(_ context.Context, fn mongotx.TransactionFunc) error {
	var sessCtx mongo.SessionContext
	return fn(sessCtx)
}

// fakeLockStore is an in-memory try-lock with the mongo slot lock store's
// contract: Acquire on a held id fails immediately with ErrSlotLocked.
type fakeLockStore struct {
	mu       sync.Mutex
	held     map[string]bool
	acquires int
	releases int
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{held: make(map[string]bool)}
}

func (l *fakeLockStore) Acquire(_ context.Context, classroomID, date string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id := fmt.Sprintf("slot_lock_%s_%s", classroomID, date)
	if l.held[id] {
		return "", requesterrors.ErrSlotLocked
	}
	l.held[id] = true
	l.acquires++
	return id, nil
}

func (l *fakeLockStore) Release(_ context.Context, lockID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.held, lockID)
	l.releases++
	return nil
}

// snapshotStore serves reads issued inside a transaction from the snapshot
// captured when the transaction began, the way a snapshot-isolated mongo
// session does. Writes land in the live store and only become visible to
// transactions that begin afterwards.
type snapshotStore struct {
	mu       sync.Mutex
	live     *fakeStore
	snapshot *fakeStore
}

func newSnapshotStore() *snapshotStore {
	return &snapshotStore{live: newFakeStore()}
}

func (s *snapshotStore) Create(ctx context.Context, req *model.BookingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.Create(ctx, req)
}

func (s *snapshotStore) FindByID(ctx context.Context, id string) (*model.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.FindByID(ctx, id)
}

func (s *snapshotStore) FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
	return s.FindByClassroomAndDate(ctx, classroomID, date, []model.RequestStatus{
		model.StatusPending,
		model.StatusApproved,
	})
}

func (s *snapshotStore) FindByClassroomAndDate(ctx context.Context, classroomID, date string, statuses []model.RequestStatus) ([]*model.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	src := s.live
	if s.snapshot != nil {
		src = s.snapshot
	}
	return src.FindByClassroomAndDate(ctx, classroomID, date, statuses)
}

func (s *snapshotStore) FindByFaculty(ctx context.Context, facultyID string, limit int, offset int64) ([]*model.BookingRequest, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.FindByFaculty(ctx, facultyID, limit, offset)
}

func (s *snapshotStore) FindPendingStartedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*model.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.FindPendingStartedBefore(ctx, cutoff, limit)
}

func (s *snapshotStore) UpdateStatus(ctx context.Context, id string, readUpdatedAt time.Time, patch model.StatusPatch) (*model.BookingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live.UpdateStatus(ctx, id, readUpdatedAt, patch)
}

func (s *snapshotStore) ExecuteTransaction(_ context.Context, fn mongotx.TransactionFunc) error {
	s.mu.Lock()
	snap := newFakeStore()
	for id, req := range s.live.requests {
		clone := *req
		snap.requests[id] = &clone
	}
	s.snapshot = snap
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.snapshot = nil
		s.mu.Unlock()
	}()

	var sessCtx mongo.SessionContext
	return fn(sessCtx)
}

type notifyCall struct {
	userID  string
	typ     model.NotificationType
	message string
	opts    notify.Options
}

type mockDispatcher struct {
	calls []notifyCall
}

func (m *mockDispatcher) Notify(_ context.Context, userID string, typ model.NotificationType, message string, opts notify.Options) (string, error) {
	m.calls = append(m.calls, notifyCall{userID: userID, typ: typ, message: message, opts: opts})
	return "notif-1", nil
}

func testClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func newTestEngine(t *testing.T) (*Engine, *fakeStore, *mockDispatcher) {
	t.Helper()
	engine, store, dispatcher, _ := newTestEngineWithLocks(t)
	return engine, store, dispatcher
}

func newTestEngineWithLocks(t *testing.T) (*Engine, *fakeStore, *mockDispatcher, *fakeLockStore) {
	t.Helper()

	store := newFakeStore()
	locks := newFakeLockStore()
	dispatcher := &mockDispatcher{}
	log := logger.Discard()
	cfg := &config.Config{Log: log}

	checker := conflict.NewCheckerWithClock(store, testClock)
	engine := NewEngine(store, locks, checker, validator.NewBookingValidator(log), dispatcher, cfg).
		WithClock(testClock)

	return engine, store, dispatcher, locks
}

func testDraft() *model.BookingDraft {
	return &model.BookingDraft{
		FacultyID:     "faculty-1",
		FacultyName:   "Dr. Mensah",
		ClassroomID:   "room-101",
		ClassroomName: "Room 101",
		Date:          "2025-03-10",
		StartTime:     "09:00",
		EndTime:       "10:00",
		Purpose:       "Linear algebra lecture",
	}
}

func TestSubmit_CreatesPendingRequest(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	req, err := engine.Submit(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if req.Status != model.StatusPending {
		t.Errorf("expected status pending, got %s", req.Status)
	}
	if req.ID == "" {
		t.Error("expected an assigned request id")
	}
	if len(store.requests) != 1 {
		t.Errorf("expected 1 stored request, got %d", len(store.requests))
	}
}

func TestSubmit_RejectsOverlappingSlot(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	if _, err := engine.Submit(context.Background(), testDraft()); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}

	overlapping := testDraft()
	overlapping.FacultyID = "faculty-2"
	overlapping.StartTime = "09:30"
	overlapping.EndTime = "10:30"

	_, err := engine.Submit(context.Background(), overlapping)
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if len(store.requests) != 1 {
		t.Errorf("conflicting submit must not be stored, have %d requests", len(store.requests))
	}
}

func TestSubmit_AllowsAdjacentSlot(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if _, err := engine.Submit(context.Background(), testDraft()); err != nil {
		t.Fatalf("first Submit returned error: %v", err)
	}

	adjacent := testDraft()
	adjacent.StartTime = "10:00"
	adjacent.EndTime = "11:00"

	if _, err := engine.Submit(context.Background(), adjacent); err != nil {
		t.Fatalf("adjacent slot must not conflict, got %v", err)
	}
}

func TestSubmit_HoldsSlotLockAroundCreate(t *testing.T) {
	engine, store, _, locks := newTestEngineWithLocks(t)

	if _, err := engine.Submit(context.Background(), testDraft()); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if locks.acquires != 1 || locks.releases != 1 {
		t.Errorf("lock acquired %d times, released %d times, want 1/1", locks.acquires, locks.releases)
	}
	if len(locks.held) != 0 {
		t.Errorf("lock still held after Submit returned")
	}
	if len(store.requests) != 1 {
		t.Errorf("expected 1 stored request, got %d", len(store.requests))
	}
}

func TestSubmit_RejectsWhileSlotLockHeld(t *testing.T) {
	engine, store, _, locks := newTestEngineWithLocks(t)

	lockID, err := locks.Acquire(context.Background(), "room-101", "2025-03-10")
	if err != nil {
		t.Fatalf("failed to seed held lock: %v", err)
	}

	_, err = engine.Submit(context.Background(), testDraft())
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected CONFLICT while lock is held, got %v", err)
	}
	if len(store.requests) != 0 {
		t.Errorf("submit under a held lock must not be stored, have %d requests", len(store.requests))
	}

	// Released lock, the retry goes through.
	if err := locks.Release(context.Background(), lockID); err != nil {
		t.Fatalf("Release returned error: %v", err)
	}
	if _, err := engine.Submit(context.Background(), testDraft()); err != nil {
		t.Fatalf("Submit after release returned error: %v", err)
	}
}

// Two concurrent submissions for overlapping slots, with transaction reads
// served from per-transaction snapshots. Without the slot lock both checks
// pass against their own snapshot and both inserts commit; the lock forces
// the loser to either fail acquisition or re-check against the winner's
// committed insert.
func TestSubmit_ConcurrentOverlapAdmitsOnlyOne(t *testing.T) {
	store := newSnapshotStore()
	locks := newFakeLockStore()
	log := logger.Discard()
	cfg := &config.Config{Log: log}

	checker := conflict.NewCheckerWithClock(store, testClock)
	engine := NewEngine(store, locks, checker, validator.NewBookingValidator(log), &mockDispatcher{}, cfg).
		WithClock(testClock)

	second := testDraft()
	second.FacultyID = "faculty-2"
	second.StartTime = "09:30"
	second.EndTime = "10:30"

	drafts := []*model.BookingDraft{testDraft(), second}
	errs := make([]error, len(drafts))

	var wg sync.WaitGroup
	for i, draft := range drafts {
		wg.Add(1)
		go func(i int, d *model.BookingDraft) {
			defer wg.Done()
			_, errs[i] = engine.Submit(context.Background(), d)
		}(i, draft)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		if !apperrors.IsConflict(err) {
			t.Fatalf("losing submission must fail with CONFLICT, got %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one submission to win, got %d", succeeded)
	}

	active, err := store.FindActive(context.Background(), "room-101", "2025-03-10")
	if err != nil {
		t.Fatalf("FindActive returned error: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active request for the slot, got %d", len(active))
	}
}

func TestSubmit_RejectsInvalidDraft(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	draft := testDraft()
	draft.Purpose = ""

	_, err := engine.Submit(context.Background(), draft)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR, got %v", err)
	}
}

func TestSubmit_RejectsPastSlot(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	draft := testDraft()
	draft.Date = "2025-02-01"

	_, err := engine.Submit(context.Background(), draft)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for past slot, got %v", err)
	}
}

func TestApprove_NotifiesOwnerExactlyOnce(t *testing.T) {
	engine, _, dispatcher := newTestEngine(t)

	req, err := engine.Submit(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	updated, err := engine.Approve(context.Background(), req.ID, "Approved, enjoy", "admin-1")
	if err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}
	if updated.Status != model.StatusApproved {
		t.Errorf("expected status approved, got %s", updated.Status)
	}
	if updated.AdminFeedback != "Approved, enjoy" {
		t.Errorf("expected feedback on the request, got %q", updated.AdminFeedback)
	}

	if len(dispatcher.calls) != 1 {
		t.Fatalf("expected exactly 1 notification, got %d", len(dispatcher.calls))
	}
	call := dispatcher.calls[0]
	if call.userID != "faculty-1" {
		t.Errorf("notification must target the owner, got %q", call.userID)
	}
	if call.typ != model.NotificationApproved {
		t.Errorf("expected approved notification, got %s", call.typ)
	}
	if call.opts.AdminFeedback != "Approved, enjoy" {
		t.Errorf("expected feedback in notification options, got %q", call.opts.AdminFeedback)
	}
	if call.opts.ActorID != "admin-1" {
		t.Errorf("expected actor id in notification options, got %q", call.opts.ActorID)
	}
}

func TestApprove_RejectsNonPending(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())
	if _, err := engine.Approve(context.Background(), req.ID, "", "admin-1"); err != nil {
		t.Fatalf("first Approve returned error: %v", err)
	}

	_, err := engine.Approve(context.Background(), req.ID, "", "admin-1")
	if !apperrors.IsInvalidTransition(err) {
		t.Fatalf("expected INVALID_TRANSITION, got %v", err)
	}
}

func TestApprove_RejectsWhenSlotTakenMeanwhile(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())

	// A competing request for the same slot got approved first.
	competing := testDraft().ToRequest()
	competing.FacultyID = "faculty-2"
	competing.Status = model.StatusApproved
	if err := store.Create(context.Background(), competing); err != nil {
		t.Fatalf("failed to seed competing request: %v", err)
	}

	_, err := engine.Approve(context.Background(), req.ID, "", "admin-1")
	if !apperrors.IsConflict(err) {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestReject_RequiresFeedback(t *testing.T) {
	engine, _, dispatcher := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())

	_, err := engine.Reject(context.Background(), req.ID, "", "admin-1")
	if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for empty feedback, got %v", err)
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("expected no notification on failed reject, got %d", len(dispatcher.calls))
	}

	updated, err := engine.Reject(context.Background(), req.ID, "Room under maintenance", "admin-1")
	if err != nil {
		t.Fatalf("Reject returned error: %v", err)
	}
	if updated.Status != model.StatusRejected {
		t.Errorf("expected status rejected, got %s", updated.Status)
	}
	if len(dispatcher.calls) != 1 || dispatcher.calls[0].typ != model.NotificationRejected {
		t.Errorf("expected one rejected notification, got %+v", dispatcher.calls)
	}
}

func TestCancelApproved_OnlyFromApproved(t *testing.T) {
	engine, _, dispatcher := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())

	if _, err := engine.CancelApproved(context.Background(), req.ID, "schedule change", "admin-1"); !apperrors.IsInvalidTransition(err) {
		t.Fatalf("expected INVALID_TRANSITION cancelling a pending request, got %v", err)
	}

	if _, err := engine.Approve(context.Background(), req.ID, "", "admin-1"); err != nil {
		t.Fatalf("Approve returned error: %v", err)
	}

	if _, err := engine.CancelApproved(context.Background(), req.ID, "", "admin-1"); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Fatalf("expected INVALID_INPUT for empty reason, got %v", err)
	}

	updated, err := engine.CancelApproved(context.Background(), req.ID, "schedule change", "admin-1")
	if err != nil {
		t.Fatalf("CancelApproved returned error: %v", err)
	}
	if updated.Status != model.StatusCancelled {
		t.Errorf("expected status cancelled, got %s", updated.Status)
	}

	last := dispatcher.calls[len(dispatcher.calls)-1]
	if last.typ != model.NotificationCancelled {
		t.Errorf("expected cancelled notification, got %s", last.typ)
	}
}

func TestStaleWrite_SurfacesInsteadOfOverwriting(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())
	store.forceStale = true

	_, err := engine.Approve(context.Background(), req.ID, "", "admin-1")
	if !apperrors.IsStaleWrite(err) {
		t.Fatalf("expected STALE_WRITE, got %v", err)
	}
}

func TestExpire_PendingPastStart(t *testing.T) {
	engine, store, dispatcher := newTestEngine(t)

	past := testDraft().ToRequest()
	past.Date = "2025-02-20"
	if err := store.Create(context.Background(), past); err != nil {
		t.Fatalf("failed to seed past request: %v", err)
	}

	updated, err := engine.Expire(context.Background(), past.ID)
	if err != nil {
		t.Fatalf("Expire returned error: %v", err)
	}
	if updated.Status != model.StatusExpired {
		t.Errorf("expected status expired, got %s", updated.Status)
	}
	if len(dispatcher.calls) != 0 {
		t.Errorf("expiry must not notify, got %d notifications", len(dispatcher.calls))
	}
}

func TestExpire_RejectsFutureStart(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	req, _ := engine.Submit(context.Background(), testDraft())

	_, err := engine.Expire(context.Background(), req.ID)
	if !apperrors.HasCode(err, apperrors.CodeValidation) {
		t.Fatalf("expected VALIDATION_ERROR for future start, got %v", err)
	}
}

func TestPendingExpirable_ListsOnlyPastPending(t *testing.T) {
	engine, store, _ := newTestEngine(t)

	past := testDraft().ToRequest()
	past.Date = "2025-02-20"
	if err := store.Create(context.Background(), past); err != nil {
		t.Fatalf("failed to seed past request: %v", err)
	}
	if _, err := engine.Submit(context.Background(), testDraft()); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}

	expirable, err := engine.PendingExpirable(context.Background(), 10)
	if err != nil {
		t.Fatalf("PendingExpirable returned error: %v", err)
	}
	if len(expirable) != 1 {
		t.Fatalf("expected 1 expirable request, got %d", len(expirable))
	}
	if expirable[0].ID != past.ID {
		t.Errorf("expected the past request, got %s", expirable[0].ID)
	}
}

func TestGetByID_MapsNotFound(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.GetByID(context.Background(), "req-404")
	if !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
