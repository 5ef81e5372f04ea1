package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatrelay/internal/logger"
	"github.com/chatrelay/internal/model"
)

type NotificationRepository struct {
	pool *pgxpool.Pool
}

func NewNotificationRepository(pool *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{pool: pool}
}

func (r *NotificationRepository) CreateNotification(ctx context.Context, n *model.Notification) error {
	defer logger.DeferLogDuration("notif.CreateNotification", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notifications (id, user_id, text, is_read, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		n.ID, n.UserID, n.Text, n.Read, n.CreatedAt,
	)
	if err != nil {
		return wrapErr("notifRepo.CreateNotification", err)
	}
	return nil
}

func (r *NotificationRepository) UserNotifications(ctx context.Context, userID string) ([]model.Notification, error) {
	defer logger.DeferLogDuration("notif.UserNotifications", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, text, is_read, created_at
		 FROM notifications
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, wrapErr("notifRepo.UserNotifications query", err)
	}
	defer rows.Close()

	notifications := make([]model.Notification, 0, 16)
	for rows.Next() {
		var n model.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Text, &n.Read, &n.CreatedAt); err != nil {
			return nil, wrapErr("notifRepo.UserNotifications scan", err)
		}
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("notifRepo.UserNotifications rows", err)
	}
	return notifications, nil
}
