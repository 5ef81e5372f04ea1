package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/chatrelay/internal/model"
	"github.com/chatrelay/internal/store"
)

// NotificationDispatcher creates user notifications independent of chat
// membership. Mark-as-read is not a core concern.
type NotificationDispatcher struct {
	notifications store.NotificationStore
}

func NewNotificationDispatcher(notifications store.NotificationStore) *NotificationDispatcher {
	return &NotificationDispatcher{notifications: notifications}
}

func (d *NotificationDispatcher) Create(ctx context.Context, userID, text string) (*model.Notification, error) {
	n := &model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Text:      text,
		Read:      false,
		CreatedAt: time.Now().UTC(),
	}
	if err := d.notifications.CreateNotification(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// ListFor returns the user's notifications. Ordering is whatever the store
// provides; callers sort if they need newest-first.
func (d *NotificationDispatcher) ListFor(ctx context.Context, userID string) ([]model.Notification, error) {
	return d.notifications.UserNotifications(ctx, userID)
}
