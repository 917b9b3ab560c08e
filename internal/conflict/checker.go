package conflict

import (
	"context"
	"fmt"
	"time"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/model"
)

// Store is the slice of the request store the checker needs: every request
// with status pending or approved for a classroom on a date.
type Store interface {
	FindActive(ctx context.Context, classroomID, date string) ([]*model.BookingRequest, error)
}

// Checker decides whether a candidate interval overlaps any active
// reservation. The same checker runs at the authoritative write path and in
// client pre-validation; the two may disagree only by timing, never by rule.
type Checker struct {
	store Store
	now   func() time.Time
}

func NewChecker(store Store) *Checker {
	return &Checker{
		store: store,
		now:   time.Now,
	}
}

// NewCheckerWithClock injects the clock for past-time checks.
func NewCheckerWithClock(store Store, now func() time.Time) *Checker {
	return &Checker{store: store, now: now}
}

type Params struct {
	ClassroomID string
	Date        string
	StartTime   string
	EndTime     string

	// ExcludeRequestID skips one request id so a request being re-evaluated
	// never conflicts with itself. Empty means exclude nothing.
	ExcludeRequestID string

	// CheckPastTime additionally rejects candidates whose date+start is
	// strictly before now.
	CheckPastTime bool
}

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// overlap. Adjoining intervals (e1 == s2) do not.
func Overlaps(s1, e1, s2, e2 string) bool {
	return minuteOfDay(s1) < minuteOfDay(e2) && minuteOfDay(s2) < minuteOfDay(e1)
}

// minuteOfDay converts "HH:MM" to minutes since midnight. Inputs are
// validated upstream; malformed values sort to -1 and never overlap.
func minuteOfDay(hhmm string) int {
	t, err := time.Parse(model.TimeLayout, hhmm)
	if err != nil {
		return -1
	}
	return t.Hour()*60 + t.Minute()
}

// HasConflict reports whether the candidate interval collides with an
// active reservation, returning the first colliding request when it does.
func (c *Checker) HasConflict(ctx context.Context, p Params) (bool, *model.BookingRequest, error) {
	if p.ClassroomID == "" || p.Date == "" {
		return false, nil, apperrors.InvalidInput("classroom ID and date are required")
	}
	if minuteOfDay(p.StartTime) < 0 || minuteOfDay(p.EndTime) < 0 {
		return false, nil, apperrors.InvalidInput(fmt.Sprintf("invalid time range %s-%s", p.StartTime, p.EndTime))
	}
	if minuteOfDay(p.EndTime) <= minuteOfDay(p.StartTime) {
		return false, nil, apperrors.Validation("end_time must be after start_time", map[string]any{
			"start_time": p.StartTime,
			"end_time":   p.EndTime,
		})
	}

	if p.CheckPastTime {
		startsAt, err := time.Parse(model.DateLayout+" "+model.TimeLayout, p.Date+" "+p.StartTime)
		if err != nil {
			return false, nil, apperrors.InvalidInput(fmt.Sprintf("invalid date %s", p.Date))
		}
		if startsAt.Before(c.now().UTC()) {
			return false, nil, apperrors.Validation("start time is in the past", map[string]any{
				"date":       p.Date,
				"start_time": p.StartTime,
			})
		}
	}

	active, err := c.store.FindActive(ctx, p.ClassroomID, p.Date)
	if err != nil {
		return false, nil, err
	}

	for _, existing := range active {
		if p.ExcludeRequestID != "" && existing.ID == p.ExcludeRequestID {
			continue
		}
		if !existing.Status.Active() {
			continue
		}
		if Overlaps(existing.StartTime, existing.EndTime, p.StartTime, p.EndTime) {
			return true, existing, nil
		}
	}

	return false, nil, nil
}

// ConflictError builds the conflict the UI shows, carrying the colliding
// interval so no re-derivation is needed.
func ConflictError(p Params, existing *model.BookingRequest) error {
	return apperrors.Conflict(fmt.Sprintf(
		"time slot %s-%s overlaps an existing booking (%s-%s)",
		p.StartTime, p.EndTime, existing.StartTime, existing.EndTime,
	)).WithDetails(map[string]any{
		"classroom_id":        p.ClassroomID,
		"date":                p.Date,
		"existing_request_id": existing.ID,
	})
}
