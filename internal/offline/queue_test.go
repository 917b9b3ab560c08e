package offline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"roombook/internal/conflict"
	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
	"roombook/pkg/model"
)

type mockSubmitter struct {
	createFunc func(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error)
	calls      atomic.Int32
}

func (m *mockSubmitter) Create(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error) {
	m.calls.Add(1)
	if m.createFunc != nil {
		return m.createFunc(ctx, draft)
	}
	req := draft.ToRequest()
	req.ID = "507f1f77bcf86cd799439011"
	return req, nil
}

type mockChecker struct {
	hasConflictFunc func(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error)
}

func (m *mockChecker) HasConflict(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error) {
	if m.hasConflictFunc != nil {
		return m.hasConflictFunc(ctx, p)
	}
	return false, nil, nil
}

type mockValidator struct {
	validateFunc func(draft *model.BookingDraft) error
}

func (m *mockValidator) ValidateDraft(draft *model.BookingDraft) error {
	if m.validateFunc != nil {
		return m.validateFunc(draft)
	}
	return nil
}

func testDraft() *model.BookingDraft {
	return &model.BookingDraft{
		FacultyID:     "faculty-1",
		FacultyName:   "Dana Levi",
		ClassroomID:   "room-102",
		ClassroomName: "Room 102",
		Date:          "2025-02-01",
		StartTime:     "14:00",
		EndTime:       "15:00",
		Purpose:       "Office hours",
	}
}

func newTestQueue(submitter *mockSubmitter, checker *mockChecker, validator *mockValidator, maxAttempts int) *Queue {
	if submitter == nil {
		submitter = &mockSubmitter{}
	}
	if checker == nil {
		checker = &mockChecker{}
	}
	if validator == nil {
		validator = &mockValidator{}
	}
	return NewQueue(NewMemoryStore(), submitter, checker, validator, maxAttempts, logger.Discard())
}

func TestEnqueue_ValidDraftReachesPendingSync(t *testing.T) {
	q := newTestQueue(nil, nil, nil, 3)

	var observed []model.QueueStatus
	unsubscribe := q.Subscribe(func(entry model.QueuedRequest) {
		observed = append(observed, entry.Status)
	})
	defer unsubscribe()

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if entry.Status != model.QueuePendingSync {
		t.Errorf("status = %s, want pending-sync", entry.Status)
	}
	if entry.QueueID == "" {
		t.Error("entry has no queue id")
	}

	want := []model.QueueStatus{model.QueuePendingValidation, model.QueuePendingSync}
	if len(observed) != len(want) {
		t.Fatalf("observed %d mutations %v, want %v", len(observed), observed, want)
	}
	for i := range want {
		if observed[i] != want[i] {
			t.Errorf("mutation %d = %s, want %s", i, observed[i], want[i])
		}
	}
}

func TestEnqueue_InvalidDraftIsTerminalFailure(t *testing.T) {
	validationErr := errors.New("Purpose is required")
	validator := &mockValidator{
		validateFunc: func(*model.BookingDraft) error { return validationErr },
	}
	submitter := &mockSubmitter{}
	q := newTestQueue(submitter, nil, validator, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if !errors.Is(err, validationErr) {
		t.Fatalf("Enqueue error = %v, want validation error", err)
	}
	if entry.Status != model.QueueFailed {
		t.Errorf("status = %s, want failed", entry.Status)
	}
	if entry.Error == "" {
		t.Error("entry.Error is empty")
	}

	// A validation failure is terminal: sync never picks it up.
	report, err := q.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("sync processed %d entries, want 0", report.Processed)
	}
	if submitter.calls.Load() != 0 {
		t.Errorf("Create called %d times, want 0", submitter.calls.Load())
	}
}

func TestSync_HappyPath(t *testing.T) {
	submitter := &mockSubmitter{}
	q := newTestQueue(submitter, nil, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	report, err := q.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	if report.Synced != 1 || report.Processed != 1 {
		t.Errorf("report = %+v, want 1 processed, 1 synced", report)
	}
	if got := submitter.calls.Load(); got != 1 {
		t.Errorf("Create called %d times, want exactly 1", got)
	}

	stored, err := q.store.Get(context.Background(), entry.QueueID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if stored.Status != model.QueueSynced {
		t.Errorf("final status = %s, want synced", stored.Status)
	}
}

func TestSync_ConflictPathNeverCreates(t *testing.T) {
	existing := testDraft().ToRequest()
	existing.ID = "507f1f77bcf86cd799439022"
	existing.StartTime = "14:30"
	existing.EndTime = "15:30"

	checker := &mockChecker{
		hasConflictFunc: func(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error) {
			return true, existing, nil
		},
	}
	submitter := &mockSubmitter{}
	q := newTestQueue(submitter, checker, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	report, err := q.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}

	if report.Conflicts != 1 {
		t.Errorf("report = %+v, want 1 conflict", report)
	}
	if submitter.calls.Load() != 0 {
		t.Errorf("Create called %d times, want 0", submitter.calls.Load())
	}

	stored, _ := q.store.Get(context.Background(), entry.QueueID)
	if stored.Status != model.QueueConflict {
		t.Errorf("final status = %s, want conflict", stored.Status)
	}
	if stored.ConflictDetails == nil || stored.ConflictDetails.Message == "" {
		t.Error("conflict details are empty")
	}

	// Conflicts require a human decision; the next pass leaves them alone.
	report, _ = q.Sync(context.Background())
	if report.Processed != 0 {
		t.Errorf("second pass processed %d entries, want 0", report.Processed)
	}
}

func TestSync_TransientErrorRetriedWithinBudget(t *testing.T) {
	var attempt atomic.Int32
	submitter := &mockSubmitter{
		createFunc: func(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error) {
			if attempt.Add(1) == 1 {
				return nil, apperrors.Transient("connection reset", errors.New("reset"))
			}
			return draft.ToRequest(), nil
		},
	}
	q := newTestQueue(submitter, nil, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	report, _ := q.Sync(context.Background())
	if report.Failed != 1 {
		t.Fatalf("first pass report = %+v, want 1 failed", report)
	}
	stored, _ := q.store.Get(context.Background(), entry.QueueID)
	if stored.Status != model.QueueFailed || stored.Attempts != 1 {
		t.Fatalf("after first pass: status=%s attempts=%d, want failed/1", stored.Status, stored.Attempts)
	}

	// Still under the attempt budget, so the next pass picks it up.
	report, _ = q.Sync(context.Background())
	if report.Synced != 1 {
		t.Fatalf("second pass report = %+v, want 1 synced", report)
	}
	stored, _ = q.store.Get(context.Background(), entry.QueueID)
	if stored.Status != model.QueueSynced {
		t.Errorf("final status = %s, want synced", stored.Status)
	}
}

func TestSync_AttemptBudgetExhausted(t *testing.T) {
	submitter := &mockSubmitter{
		createFunc: func(ctx context.Context, draft *model.BookingDraft) (*model.BookingRequest, error) {
			return nil, apperrors.Transient("still down", errors.New("down"))
		},
	}
	q := newTestQueue(submitter, nil, nil, 2)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	q.Sync(context.Background())
	q.Sync(context.Background())

	stored, _ := q.store.Get(context.Background(), entry.QueueID)
	if stored.Attempts != 2 {
		t.Fatalf("attempts = %d, want 2", stored.Attempts)
	}

	report, _ := q.Sync(context.Background())
	if report.Processed != 0 {
		t.Errorf("exhausted entry was processed again: %+v", report)
	}

	// Explicit user retry re-arms the budget.
	reset, err := q.RetryFailed(context.Background())
	if err != nil || reset != 1 {
		t.Fatalf("RetryFailed = (%d, %v), want (1, nil)", reset, err)
	}
	report, _ = q.Sync(context.Background())
	if report.Processed != 1 {
		t.Errorf("retried entry not processed: %+v", report)
	}
}

func TestSync_RecoversEntryStrandedSyncing(t *testing.T) {
	submitter := &mockSubmitter{}
	q := newTestQueue(submitter, nil, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	// A crash mid-pass leaves the entry in syncing; the durable store hands
	// it back in that state after restart.
	entry.Status = model.QueueSyncing
	if err := q.store.Update(context.Background(), entry); err != nil {
		t.Fatalf("failed to strand entry: %v", err)
	}

	report, err := q.Sync(context.Background())
	if err != nil {
		t.Fatalf("Sync returned error: %v", err)
	}
	if report.Processed != 1 || report.Synced != 1 {
		t.Errorf("report = %+v, want the stranded entry processed and synced", report)
	}

	stored, _ := q.store.Get(context.Background(), entry.QueueID)
	if stored.Status != model.QueueSynced {
		t.Errorf("final status = %s, want synced", stored.Status)
	}
	if got := submitter.calls.Load(); got != 1 {
		t.Errorf("Create called %d times, want exactly 1", got)
	}
}

func TestSync_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	checker := &mockChecker{
		hasConflictFunc: func(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error) {
			close(started)
			<-release
			return false, nil, nil
		},
	}
	q := newTestQueue(nil, checker, nil, 3)

	if _, err := q.Enqueue(context.Background(), testDraft()); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstReport *SyncReport
	go func() {
		defer wg.Done()
		firstReport, _ = q.Sync(context.Background())
	}()

	<-started
	second, err := q.Sync(context.Background())
	if err != nil {
		t.Fatalf("second Sync returned error: %v", err)
	}
	if !second.Coalesced {
		t.Error("concurrent trigger was not coalesced")
	}
	close(release)
	wg.Wait()

	if firstReport.Coalesced || firstReport.Synced != 1 {
		t.Errorf("first pass report = %+v, want 1 synced, not coalesced", firstReport)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	q := newTestQueue(nil, nil, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if err := q.Remove(context.Background(), entry.QueueID); err != nil {
		t.Fatalf("Remove returned error: %v", err)
	}
	if err := q.Remove(context.Background(), entry.QueueID); err != nil {
		t.Fatalf("second Remove returned error: %v", err)
	}
	if err := q.Remove(context.Background(), "never-existed"); err != nil {
		t.Fatalf("Remove of unknown id returned error: %v", err)
	}

	entries, _ := q.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("queue has %d entries after remove, want 0", len(entries))
	}
}

func TestRetryBooking_HandsDraftBack(t *testing.T) {
	checker := &mockChecker{
		hasConflictFunc: func(ctx context.Context, p conflict.Params) (bool, *model.BookingRequest, error) {
			existing := testDraft().ToRequest()
			existing.ID = "507f1f77bcf86cd799439033"
			return true, existing, nil
		},
	}
	q := newTestQueue(nil, checker, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	q.Sync(context.Background())

	draft, err := q.RetryBooking(context.Background(), entry.QueueID)
	if err != nil {
		t.Fatalf("RetryBooking returned error: %v", err)
	}
	if draft.ClassroomID != "room-102" || draft.StartTime != "14:00" {
		t.Errorf("returned draft = %+v, want original booking data", draft)
	}

	entries, _ := q.List(context.Background())
	if len(entries) != 0 {
		t.Errorf("conflicted entry still in queue after retry booking")
	}
}

func TestRetryBooking_RejectsNonTerminalEntry(t *testing.T) {
	q := newTestQueue(nil, nil, nil, 3)

	entry, err := q.Enqueue(context.Background(), testDraft())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	if _, err := q.RetryBooking(context.Background(), entry.QueueID); !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
		t.Errorf("RetryBooking on pending-sync entry = %v, want invalid input", err)
	}
	if _, err := q.RetryBooking(context.Background(), "never-existed"); !apperrors.HasCode(err, apperrors.CodeNotFound) {
		t.Errorf("RetryBooking on unknown id = %v, want not found", err)
	}
}

func TestSubscribe_UnsubscribeStopsDelivery(t *testing.T) {
	q := newTestQueue(nil, nil, nil, 3)

	var count int
	unsubscribe := q.Subscribe(func(model.QueuedRequest) { count++ })

	if _, err := q.Enqueue(context.Background(), testDraft()); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if count == 0 {
		t.Fatal("listener never fired")
	}

	seen := count
	unsubscribe()
	if _, err := q.Enqueue(context.Background(), testDraft()); err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if count != seen {
		t.Errorf("listener fired after unsubscribe")
	}
}
