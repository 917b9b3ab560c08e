package model

import "time"

// SlotLock is an advisory lock over one classroom+date, held while a
// submission runs its conflict check and create. Overlapping candidates
// always share classroom and date, so serializing on that pair closes the
// check-then-create race between concurrent submissions.
type SlotLock struct {
	ID        string    `bson:"_id" json:"id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
