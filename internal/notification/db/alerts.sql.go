package db

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const alertColumns = `id, user_id, email, category, kind, country, city, created_at`

// cityKey は都市名の照合キーを返す。SQLiteのNOCASEはASCIIしか畳み込まない。
func cityKey(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// CreateAlertParams はCreateAlertの引数。
type CreateAlertParams struct {
	ID        string
	UserID    string
	Email     string
	Category  string
	Kind      string
	Country   string
	City      string
	CreatedAt time.Time
}

const createAlert = `
INSERT INTO alerts (id, user_id, email, category, kind, country, city, city_key, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateAlert はアラートを作成する。
// 大文字小文字だけが異なる都市名の同じ条件はUNIQUE制約違反になる。
func (q *Queries) CreateAlert(ctx context.Context, arg CreateAlertParams) error {
	_, err := q.db.ExecContext(ctx, createAlert,
		arg.ID, arg.UserID, arg.Email, arg.Category, arg.Kind, arg.Country, arg.City, cityKey(arg.City), arg.CreatedAt,
	)
	return err
}

const getAlert = `SELECT ` + alertColumns + ` FROM alerts WHERE id = ?`

// GetAlert はIDでアラートを取得する。
func (q *Queries) GetAlert(ctx context.Context, id string) (Alert, error) {
	var a Alert
	err := sqlx.GetContext(ctx, q.db, &a, getAlert, id)
	return a, err
}

const listAlertsByUser = `SELECT ` + alertColumns + ` FROM alerts WHERE user_id = ? ORDER BY created_at, id`

// ListAlertsByUser はユーザーのアラートを作成順に返す。
func (q *Queries) ListAlertsByUser(ctx context.Context, userID string) ([]Alert, error) {
	alerts := []Alert{}
	err := sqlx.SelectContext(ctx, q.db, &alerts, listAlertsByUser, userID)
	return alerts, err
}

const countAlertsByUser = `SELECT COUNT(*) FROM alerts WHERE user_id = ?`

// CountAlertsByUser はユーザーのアラート数を返す。
func (q *Queries) CountAlertsByUser(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countAlertsByUser, userID)
	return n, err
}

const deleteAlert = `DELETE FROM alerts WHERE id = ? AND user_id = ?`

// DeleteAlert はユーザーのアラートを削除し、削除件数を返す。
func (q *Queries) DeleteAlert(ctx context.Context, id, userID string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteAlert, id, userID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MatchAlertsParams はMatchAlertsの引数。投稿の属性を表す。
type MatchAlertsParams struct {
	Category string
	Kind     string
	Country  string
	City     string
	// ExcludeUserID は対象から外すユーザー（投稿者）。
	ExcludeUserID string
}

const matchAlerts = `
SELECT ` + alertColumns + ` FROM alerts
WHERE (category = '' OR category = ?)
  AND (kind = '' OR kind = ?)
  AND (country = '' OR country = ?)
  AND (city_key = '' OR city_key = ?)
  AND user_id <> ?
ORDER BY created_at, id
`

// MatchAlerts は投稿の属性に一致するアラートを作成順に返す。
func (q *Queries) MatchAlerts(ctx context.Context, arg MatchAlertsParams) ([]Alert, error) {
	alerts := []Alert{}
	err := sqlx.SelectContext(ctx, q.db, &alerts, matchAlerts,
		arg.Category, arg.Kind, arg.Country, cityKey(arg.City), arg.ExcludeUserID,
	)
	return alerts, err
}
