package conflict

import (
	"context"
	"testing"
	"time"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
)

type mockStore struct {
	findActiveFunc func(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error)
}

func (m *mockStore) FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
	if m.findActiveFunc != nil {
		return m.findActiveFunc(ctx, classroomID, date)
	}
	return nil, nil
}

func fixedClock(value string) func() time.Time {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name           string
		s1, e1, s2, e2 string
		want           bool
	}{
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"partial overlap", "09:00", "10:00", "09:30", "10:30", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"containing", "10:00", "11:00", "09:00", "12:00", true},
		{"adjoining after", "09:00", "10:00", "10:00", "11:00", false},
		{"adjoining before", "10:00", "11:00", "09:00", "10:00", false},
		{"disjoint", "09:00", "10:00", "14:00", "15:00", false},
		{"one minute overlap", "09:00", "10:01", "10:00", "11:00", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.s1, tt.e1, tt.s2, tt.e2); got != tt.want {
				t.Errorf("Overlaps(%s-%s, %s-%s) = %v, want %v", tt.s1, tt.e1, tt.s2, tt.e2, got, tt.want)
			}
			// Overlap is symmetric.
			if got := Overlaps(tt.s2, tt.e2, tt.s1, tt.e1); got != tt.want {
				t.Errorf("Overlaps(%s-%s, %s-%s) = %v, want %v", tt.s2, tt.e2, tt.s1, tt.e1, got, tt.want)
			}
		})
	}
}

func activeRequest(id, start, end string) *model.BookingRequest {
	return &model.BookingRequest{
		ID:          id,
		ClassroomID: "room-101",
		Date:        "2025-01-15",
		StartTime:   start,
		EndTime:     end,
		Status:      model.StatusApproved,
	}
}

func TestHasConflict_DetectsOverlap(t *testing.T) {
	store := &mockStore{
		findActiveFunc: func(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
			return []*model.BookingRequest{activeRequest("x", "09:00", "10:00")}, nil
		},
	}
	checker := NewChecker(store)

	conflicting, existing, err := checker.HasConflict(context.Background(), Params{
		ClassroomID: "room-101",
		Date:        "2025-01-15",
		StartTime:   "09:30",
		EndTime:     "10:30",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !conflicting {
		t.Fatal("expected a conflict for overlapping interval")
	}
	if existing == nil || existing.ID != "x" {
		t.Fatalf("expected colliding request x, got %+v", existing)
	}
}

func TestHasConflict_AdjoiningIsNotConflict(t *testing.T) {
	store := &mockStore{
		findActiveFunc: func(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
			return []*model.BookingRequest{activeRequest("x", "09:00", "10:00")}, nil
		},
	}
	checker := NewChecker(store)

	conflicting, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID: "room-101",
		Date:        "2025-01-15",
		StartTime:   "10:00",
		EndTime:     "11:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting {
		t.Error("adjoining intervals must not conflict")
	}
}

func TestHasConflict_ExcludesSelf(t *testing.T) {
	store := &mockStore{
		findActiveFunc: func(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
			return []*model.BookingRequest{activeRequest("self", "09:00", "10:00")}, nil
		},
	}
	checker := NewChecker(store)

	conflicting, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID:      "room-101",
		Date:             "2025-01-15",
		StartTime:        "09:00",
		EndTime:          "10:00",
		ExcludeRequestID: "self",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting {
		t.Error("a request must never conflict with itself")
	}
}

func TestHasConflict_PastStartRejected(t *testing.T) {
	store := &mockStore{}
	checker := NewCheckerWithClock(store, fixedClock("2025-01-15T12:00:00Z"))

	_, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID:   "room-101",
		Date:          "2025-01-15",
		StartTime:     "09:00",
		EndTime:       "10:00",
		CheckPastTime: true,
	})
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for past start, got %v", err)
	}

	// Future start on the same day passes.
	conflicting, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID:   "room-101",
		Date:          "2025-01-15",
		StartTime:     "14:00",
		EndTime:       "15:00",
		CheckPastTime: true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting {
		t.Error("expected no conflict on empty store")
	}
}

func TestHasConflict_InvertedRange(t *testing.T) {
	checker := NewChecker(&mockStore{})

	_, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID: "room-101",
		Date:        "2025-01-15",
		StartTime:   "11:00",
		EndTime:     "10:00",
	})
	if !apperrors.IsValidation(err) {
		t.Fatalf("expected validation error for inverted range, got %v", err)
	}
}

func TestHasConflict_IgnoresInactiveStatuses(t *testing.T) {
	rejected := activeRequest("r", "09:00", "10:00")
	rejected.Status = model.StatusRejected
	cancelled := activeRequest("c", "09:00", "10:00")
	cancelled.Status = model.StatusCancelled

	store := &mockStore{
		findActiveFunc: func(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error) {
			return []*model.BookingRequest{rejected, cancelled}, nil
		},
	}
	checker := NewChecker(store)

	conflicting, _, err := checker.HasConflict(context.Background(), Params{
		ClassroomID: "room-101",
		Date:        "2025-01-15",
		StartTime:   "09:00",
		EndTime:     "10:00",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conflicting {
		t.Error("terminal statuses must not count for conflict purposes")
	}
}
