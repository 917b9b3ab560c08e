package notify

import (
	"context"
	"errors"
	"time"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/kafka"
	"roombook/pkg/logger"
	"roombook/pkg/model"
	"roombook/pkg/sealer"
)

// EventPublisher is the slice of the kafka producer the service needs.
type EventPublisher interface {
	Publish(ctx context.Context, msg kafka.Message) error
}

// Service creates, lists and acknowledges notifications. It implements
// Dispatcher for the lifecycle engine.
type Service struct {
	store     NotificationStore
	publisher EventPublisher
	log       *logger.Logger
	now       func() time.Time
}

func NewService(store NotificationStore, publisher EventPublisher, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		log:       log,
		now:       time.Now,
	}
}

// WithClock overrides the service clock. Meant for tests.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Notify persists a notification for userID and publishes the matching
// event. When the actor is the recipient the notification is suppressed
// entirely: nothing is stored, nothing is published, and the returned id
// is empty.
func (s *Service) Notify(ctx context.Context, userID string, typ model.NotificationType, message string, opts Options) (string, error) {
	if userID == "" {
		return "", apperrors.InvalidInput("notification recipient cannot be empty")
	}
	if message == "" {
		return "", apperrors.InvalidInput("notification message cannot be empty")
	}

	if opts.ActorID != "" && opts.ActorID == userID {
		s.log.Debug("Notification suppressed: actor is the recipient",
			"user_id", userID,
			"type", typ,
			"booking_request_id", opts.BookingRequestID,
		)
		return "", nil
	}

	notification := &model.Notification{
		UserID:           userID,
		Type:             typ,
		Message:          message,
		BookingRequestID: opts.BookingRequestID,
		AdminFeedback:    opts.AdminFeedback,
		CreatedAt:        s.now().UTC().Truncate(time.Millisecond),
	}

	if err := s.store.Insert(ctx, notification); err != nil {
		return "", s.mapStoreError("", err)
	}

	s.publishCreated(ctx, notification)

	s.log.Info("Notification created",
		"id", notification.ID,
		"user_id", userID,
		"type", typ,
	)
	return notification.ID, nil
}

// publishCreated emits the notification event. The stored notification is
// the source of truth, so a publish failure is logged and swallowed.
func (s *Service) publishCreated(ctx context.Context, n *model.Notification) {
	if s.publisher == nil {
		return
	}

	ackToken, err := sealer.CreateOpaqueToken(n.ID, n.UserID)
	if err != nil {
		s.log.Warn("Failed to seal acknowledge token", "notification_id", n.ID, "error", err)
	}

	event := NotificationEvent{
		NotificationID:   n.ID,
		UserID:           n.UserID,
		Type:             string(n.Type),
		Message:          n.Message,
		BookingRequestID: n.BookingRequestID,
		AdminFeedback:    n.AdminFeedback,
		CreatedAt:        n.CreatedAt,
		AckToken:         ackToken,
	}

	msg := kafka.NewMessage().
		WithKey(n.UserID).
		WithValue(event).
		WithEventType(EventNotificationCreated).
		WithSource(eventSource).
		WithHeader(kafka.HeaderSchemaVersion, eventSchemaVersion).
		Build()

	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.log.Error("Failed to publish notification event",
			"notification_id", n.ID,
			"user_id", n.UserID,
			"error", err,
		)
	}
}

func (s *Service) ListByUser(ctx context.Context, userID string, unacknowledgedOnly bool, limit int, offset int64) ([]*model.Notification, int64, error) {
	if userID == "" {
		return nil, 0, apperrors.InvalidInput("user ID is required")
	}
	notifications, count, err := s.store.FindByUser(ctx, userID, unacknowledgedOnly, limit, offset)
	if err != nil {
		return nil, 0, s.mapStoreError("", err)
	}
	return notifications, count, nil
}

func (s *Service) Acknowledge(ctx context.Context, notificationID, userID string) (*model.Notification, error) {
	if notificationID == "" || userID == "" {
		return nil, apperrors.InvalidInput("notification ID and user ID are required")
	}

	n, err := s.store.Acknowledge(ctx, notificationID, userID)
	if err != nil {
		return nil, s.mapStoreError(notificationID, err)
	}
	return n, nil
}

// AcknowledgeByToken resolves an opaque acknowledge-link token and marks the
// sealed notification as seen.
func (s *Service) AcknowledgeByToken(ctx context.Context, token string) (*model.Notification, error) {
	if token == "" {
		return nil, apperrors.InvalidInput("acknowledge token is required")
	}

	notificationID, userID, err := sealer.ParseOpaqueToken(token)
	if err != nil {
		return nil, apperrors.InvalidInput("invalid acknowledge token")
	}

	return s.Acknowledge(ctx, notificationID, userID)
}

func (s *Service) AcknowledgeAll(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, apperrors.InvalidInput("user ID is required")
	}

	count, err := s.store.AcknowledgeAll(ctx, userID)
	if err != nil {
		return 0, s.mapStoreError("", err)
	}

	s.log.Info("Notifications acknowledged", "user_id", userID, "count", count)
	return count, nil
}

func (s *Service) mapStoreError(notificationID string, err error) error {
	switch {
	case errors.Is(err, ErrNotificationNotFound):
		return apperrors.NotFoundWithID("Notification", notificationID)
	case errors.Is(err, ErrInvalidNotificationID):
		return apperrors.InvalidInput("Invalid notification ID format")
	case apperrors.IsAppError(err):
		return err
	default:
		return apperrors.Internal("Notification store operation failed", err)
	}
}
