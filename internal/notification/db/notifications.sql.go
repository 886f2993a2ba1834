package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, user_id, kind, reference_id, title, message, link, is_read, created_at`

// CreateNotificationParams はCreateNotificationの引数。
type CreateNotificationParams struct {
	ID          string
	UserID      string
	Kind        string
	ReferenceID string
	Title       string
	Message     string
	Link        string
	CreatedAt   time.Time
}

const createNotification = `
INSERT INTO notifications (id, user_id, kind, reference_id, title, message, link, is_read, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?)
`

// CreateNotification は通知を作成する。
func (q *Queries) CreateNotification(ctx context.Context, arg CreateNotificationParams) error {
	_, err := q.db.ExecContext(ctx, createNotification,
		arg.ID, arg.UserID, arg.Kind, arg.ReferenceID, arg.Title, arg.Message, arg.Link, arg.CreatedAt,
	)
	return err
}

const getNotificationByID = `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`

// GetNotificationByID はIDで通知を取得する。
func (q *Queries) GetNotificationByID(ctx context.Context, id string) (Notification, error) {
	var n Notification
	err := sqlx.GetContext(ctx, q.db, &n, getNotificationByID, id)
	return n, err
}

const listNotificationsByUserID = `
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = ?
ORDER BY created_at DESC, id DESC
LIMIT ? OFFSET ?
`

// ListNotificationsByUserID はユーザーの通知を新しい順に返す。
func (q *Queries) ListNotificationsByUserID(ctx context.Context, userID string, limit, offset uint64) ([]Notification, error) {
	items := []Notification{}
	err := sqlx.SelectContext(ctx, q.db, &items, listNotificationsByUserID, userID, limit, offset)
	return items, err
}

const countNotificationsByUserID = `SELECT COUNT(*) FROM notifications WHERE user_id = ?`

// CountNotificationsByUserID はユーザーの通知数を返す。
func (q *Queries) CountNotificationsByUserID(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countNotificationsByUserID, userID)
	return n, err
}

const listUnreadNotifications = `
SELECT ` + notificationColumns + ` FROM notifications
WHERE user_id = ? AND is_read = 0
ORDER BY created_at DESC, id DESC
`

// ListUnreadNotifications はユーザーの未読通知を新しい順に返す。
func (q *Queries) ListUnreadNotifications(ctx context.Context, userID string) ([]Notification, error) {
	items := []Notification{}
	err := sqlx.SelectContext(ctx, q.db, &items, listUnreadNotifications, userID)
	return items, err
}

const markAsRead = `UPDATE notifications SET is_read = 1 WHERE id = ?`

// MarkAsRead は通知を既読にする。
func (q *Queries) MarkAsRead(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, markAsRead, id)
	return err
}

const markAllAsRead = `UPDATE notifications SET is_read = 1 WHERE user_id = ? AND is_read = 0`

// MarkAllAsRead はユーザーの未読通知をすべて既読にし、更新件数を返す。
func (q *Queries) MarkAllAsRead(ctx context.Context, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, markAllAsRead, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const listNotifiedUsers = `
SELECT DISTINCT user_id FROM notifications
WHERE reference_id = ? AND kind = ?
ORDER BY user_id
`

// ListNotifiedUsers は投稿について指定種類の通知を受け取ったユーザーIDを返す。
func (q *Queries) ListNotifiedUsers(ctx context.Context, referenceID, kind string) ([]string, error) {
	ids := []string{}
	err := sqlx.SelectContext(ctx, q.db, &ids, listNotifiedUsers, referenceID, kind)
	return ids, err
}

const deleteReadNotificationsBefore = `DELETE FROM notifications WHERE is_read = 1 AND created_at < ?`

// DeleteReadNotificationsBefore は指定時刻より前の既読通知を削除し、削除件数を返す。
func (q *Queries) DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteReadNotificationsBefore, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
