package model

import "time"

type NotificationType string

const (
	NotificationApproved  NotificationType = "approved"
	NotificationRejected  NotificationType = "rejected"
	NotificationCancelled NotificationType = "cancelled"
	NotificationInfo      NotificationType = "info"
	NotificationSignup    NotificationType = "signup"
)

// Notification is created exactly once per accepted lifecycle transition
// (unless the actor is the recipient) and is mutated only by acknowledgment.
type Notification struct {
	ID               string           `json:"id,omitempty" bson:"_id,omitempty"`
	UserID           string           `json:"user_id" bson:"user_id"`
	Type             NotificationType `json:"type" bson:"type"`
	Message          string           `json:"message" bson:"message"`
	BookingRequestID string           `json:"booking_request_id,omitempty" bson:"booking_request_id,omitempty"`
	AdminFeedback    string           `json:"admin_feedback,omitempty" bson:"admin_feedback,omitempty"`
	AcknowledgedAt   *time.Time       `json:"acknowledged_at,omitempty" bson:"acknowledged_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at" bson:"created_at"`
}

// Acknowledged reports whether the recipient has seen this notification.
func (n *Notification) Acknowledged() bool {
	return n.AcknowledgedAt != nil
}
