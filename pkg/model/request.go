package model

import (
	"fmt"
	"time"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusExpired   RequestStatus = "expired"
	StatusCancelled RequestStatus = "cancelled"
)

// Active reports whether a request in this status occupies its time slot
// for conflict purposes.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Terminal reports whether no further transition is allowed out of this status.
func (s RequestStatus) Terminal() bool {
	return s == StatusRejected || s == StatusExpired || s == StatusCancelled
}

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// BookingRequest is a faculty reservation of a classroom for a half-open
// time interval [StartTime, EndTime) on a calendar date. Requests are never
// physically deleted; rejected/expired/cancelled are terminal states.
type BookingRequest struct {
	ID            string        `json:"id,omitempty" bson:"_id,omitempty" validate:"omitempty,mongodb"`
	FacultyID     string        `json:"faculty_id" bson:"faculty_id" validate:"required"`
	FacultyName   string        `json:"faculty_name" bson:"faculty_name" validate:"required,min=1,max=100"`
	ClassroomID   string        `json:"classroom_id" bson:"classroom_id" validate:"required"`
	ClassroomName string        `json:"classroom_name" bson:"classroom_name" validate:"required,min=1,max=100"`
	Date          string        `json:"date" bson:"date" validate:"required,dateonly"`
	StartTime     string        `json:"start_time" bson:"start_time" validate:"required,hhmm"`
	EndTime       string        `json:"end_time" bson:"end_time" validate:"required,hhmm"`
	Purpose       string        `json:"purpose" bson:"purpose" validate:"required,min=2,max=500"`
	Status        RequestStatus `json:"status" bson:"status" validate:"omitempty,oneof=pending approved rejected expired cancelled"`
	AdminFeedback string        `json:"admin_feedback,omitempty" bson:"admin_feedback,omitempty"`
	CreatedAt     time.Time     `json:"created_at" bson:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" bson:"updated_at"`
	UpdatedBy     string        `json:"updated_by,omitempty" bson:"updated_by,omitempty"`
}

// StartsAt resolves Date+StartTime into an absolute UTC instant.
func (r *BookingRequest) StartsAt() (time.Time, error) {
	t, err := time.Parse(DateLayout+" "+TimeLayout, r.Date+" "+r.StartTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date/time %q %q: %w", r.Date, r.StartTime, err)
	}
	return t.UTC(), nil
}

// BookingDraft is a not-yet-confirmed submission. It is what the offline
// queue persists locally and what RequestStore.Create consumes.
type BookingDraft struct {
	FacultyID     string `json:"faculty_id" bson:"faculty_id" validate:"required"`
	FacultyName   string `json:"faculty_name" bson:"faculty_name" validate:"required,min=1,max=100"`
	ClassroomID   string `json:"classroom_id" bson:"classroom_id" validate:"required"`
	ClassroomName string `json:"classroom_name" bson:"classroom_name" validate:"required,min=1,max=100"`
	Date          string `json:"date" bson:"date" validate:"required,dateonly"`
	StartTime     string `json:"start_time" bson:"start_time" validate:"required,hhmm"`
	EndTime       string `json:"end_time" bson:"end_time" validate:"required,hhmm"`
	Purpose       string `json:"purpose" bson:"purpose" validate:"required,min=2,max=500"`
}

// ToRequest builds the pending BookingRequest this draft turns into once it
// reaches the server.
func (d *BookingDraft) ToRequest() *BookingRequest {
	return &BookingRequest{
		FacultyID:     d.FacultyID,
		FacultyName:   d.FacultyName,
		ClassroomID:   d.ClassroomID,
		ClassroomName: d.ClassroomName,
		Date:          d.Date,
		StartTime:     d.StartTime,
		EndTime:       d.EndTime,
		Purpose:       d.Purpose,
		Status:        StatusPending,
	}
}

// StatusPatch is the mutable subset a lifecycle transition writes. The
// store applies it conditionally on the request's previous UpdatedAt.
type StatusPatch struct {
	Status        RequestStatus
	AdminFeedback string
	UpdatedBy     string
	UpdatedAt     time.Time
}
