package model

import "time"

type QueueStatus string

const (
	// QueuePendingValidation: entry created locally, schema check not done yet.
	QueuePendingValidation QueueStatus = "pending-validation"
	// QueuePendingSync: locally valid, waiting for connectivity.
	QueuePendingSync QueueStatus = "pending-sync"
	// QueueSyncing: a sync attempt for this entry is in flight.
	QueueSyncing QueueStatus = "syncing"
	// QueueConflict: the server found an overlap at sync time. Terminal for
	// automation; resolving it requires a human decision.
	QueueConflict QueueStatus = "conflict"
	// QueueFailed: sync failed. Transient failures stay retry-eligible up to
	// a bounded attempt count; validation failures are terminal.
	QueueFailed QueueStatus = "failed"
	// QueueSynced: the draft exists server-side.
	QueueSynced QueueStatus = "synced"
)

// ConflictDetails records why the server refused an entry at sync time.
type ConflictDetails struct {
	Message string `json:"message" bson:"message"`
}

// QueuedRequest wraps a draft held client-side until it can be reconciled
// against server state. Owned exclusively by the client.
type QueuedRequest struct {
	QueueID         string           `json:"queue_id" bson:"_id"`
	Draft           BookingDraft     `json:"booking_data" bson:"booking_data"`
	Status          QueueStatus      `json:"status" bson:"status"`
	Attempts        int              `json:"attempts" bson:"attempts"`
	ConflictDetails *ConflictDetails `json:"conflict_details,omitempty" bson:"conflict_details,omitempty"`
	Error           string           `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt       time.Time        `json:"created_at" bson:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at" bson:"updated_at"`
}
