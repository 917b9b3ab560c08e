package errors

import "errors"

var (
	ErrNotFound = errors.New("booking request not found")

	ErrInvalidID = errors.New("invalid booking request ID format")

	ErrStaleWrite = errors.New("booking request changed since it was read")

	ErrSlotLocked = errors.New("slot lock already held")

	ErrInvalidTimeRange = errors.New("end time must be after start time")
)
