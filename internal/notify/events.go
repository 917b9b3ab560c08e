package notify

import "time"

// Event types published to the notifications topic.
const (
	EventNotificationCreated = "notification.created"

	eventSchemaVersion = "1"
	eventSource        = "roombook-api"
)

// NotificationEvent is the JSON payload carried by a notification message.
// The kafka key is the recipient's user id, so one user's notifications stay
// ordered on a single partition.
type NotificationEvent struct {
	NotificationID   string    `json:"notification_id"`
	UserID           string    `json:"user_id"`
	Type             string    `json:"type"`
	Message          string    `json:"message"`
	BookingRequestID string    `json:"booking_request_id,omitempty"`
	AdminFeedback    string    `json:"admin_feedback,omitempty"`
	CreatedAt        time.Time `json:"created_at"`

	// AckToken is an opaque token sealing (notification id, user id); the
	// delivery channel embeds it in a one-click acknowledge link.
	AckToken string `json:"ack_token,omitempty"`
}
