package notify

import (
	"context"

	"roombook/pkg/model"
)

// Options carries the optional context attached to a notification.
// ActorID drives self-notification suppression: an actor never receives a
// notification for their own action.
type Options struct {
	BookingRequestID string
	AdminFeedback    string
	ActorID          string
}

// Dispatcher fans lifecycle events out to affected users. Notify returns
// the created notification id, or "" when the notification was suppressed
// because the actor is the recipient.
type Dispatcher interface {
	Notify(ctx context.Context, userID string, typ model.NotificationType, message string, opts Options) (string, error)
}
