package application

import (
	"context"
	"slices"

	"github.com/bengol30/bandgo/internal/domain"
	"github.com/bengol30/bandgo/internal/persistence"
)

// NotificationService reads and acknowledges the per-user inbox.
type NotificationService struct {
	service
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(deps Deps) *NotificationService {
	return &NotificationService{service: newService("NotificationService", deps, nil)}
}

// ListNotifications returns the principal's notifications, newest first.
func (s *NotificationService) ListNotifications(ctx context.Context, principal Principal, unreadOnly bool) (notifications []domain.Notification, err error) {
	if err = requireActive(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		notifications = tx.Notifications().Find(func(n domain.Notification) bool {
			return n.UserID == principal.UserID && (!unreadOnly || !n.Read)
		})
		return nil
	})
	slices.Reverse(notifications)
	return
}

// UnreadCount counts the principal's unread notifications.
func (s *NotificationService) UnreadCount(ctx context.Context, principal Principal) (count int, err error) {
	if err = requireActive(principal); err != nil {
		return
	}
	err = s.read(ctx, func(tx persistence.Tx) error {
		count = len(tx.Notifications().Find(func(n domain.Notification) bool {
			return n.UserID == principal.UserID && !n.Read
		}))
		return nil
	})
	return
}

// MarkNotificationRead marks one of the principal's notifications as read.
func (s *NotificationService) MarkNotificationRead(ctx context.Context, principal Principal, notificationID string) (notification domain.Notification, err error) {
	_, done := s.begin(ctx, "MarkNotificationRead", "actor_id", principal.UserID, "notification_id", notificationID)
	defer func() { done(err, "notification read") }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		var err error
		if notification, err = get(u.tx.Notifications(), "notification", notificationID); err != nil {
			return err
		}
		if notification.UserID != principal.UserID {
			return notFound("notification", notificationID)
		}
		if notification.Read {
			return nil
		}
		notification.Read = true
		notification.UpdatedAt = s.now()
		return u.tx.Notifications().Update(notification)
	})
	return
}

// MarkAllNotificationsRead marks every unread notification of the principal as read.
func (s *NotificationService) MarkAllNotificationsRead(ctx context.Context, principal Principal) (marked int, err error) {
	_, done := s.begin(ctx, "MarkAllNotificationsRead", "actor_id", principal.UserID)
	defer func() { done(err, "notifications read", "count", marked) }()

	if err = requireActive(principal); err != nil {
		return
	}
	err = s.write(ctx, func(u *unit) error {
		now := s.now()
		unread := u.tx.Notifications().Find(func(n domain.Notification) bool {
			return n.UserID == principal.UserID && !n.Read
		})
		for _, n := range unread {
			n.Read = true
			n.UpdatedAt = now
			if err := u.tx.Notifications().Update(n); err != nil {
				return err
			}
		}
		marked = len(unread)
		return nil
	})
	return
}
