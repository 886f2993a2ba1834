package db

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const reportColumns = `id, listing_id, reporter_id, reason, details, status, created_at, handled_by, handled_at`

// CreateReportParams はCreateReportの引数。
type CreateReportParams struct {
	ID         string
	ListingID  string
	ReporterID string
	Reason     string
	Details    string
	CreatedAt  time.Time
}

const createReport = `
INSERT INTO reports (id, listing_id, reporter_id, reason, details, status, created_at)
VALUES (?, ?, ?, ?, ?, 'open', ?)
`

// CreateReport は通報を作成する。同じユーザーの未処理の通報が既にある場合はUNIQUE制約違反になる。
func (q *Queries) CreateReport(ctx context.Context, arg CreateReportParams) error {
	_, err := q.db.ExecContext(ctx, createReport,
		arg.ID, arg.ListingID, arg.ReporterID, arg.Reason, arg.Details, arg.CreatedAt,
	)
	return err
}

const getReport = `SELECT ` + reportColumns + ` FROM reports WHERE id = ?`

// GetReport はIDで通報を取得する。
func (q *Queries) GetReport(ctx context.Context, id string) (Report, error) {
	var r Report
	err := sqlx.GetContext(ctx, q.db, &r, getReport, id)
	return r, err
}

// ListReportsParams はListReportsの引数。
type ListReportsParams struct {
	// Status が空の場合は全ステータス。
	Status string
	Limit  uint64
	Offset uint64
}

func (arg ListReportsParams) where() sq.And {
	cond := sq.And{}
	if arg.Status != "" {
		cond = append(cond, sq.Eq{"r.status": arg.Status})
	}
	return cond
}

// ListReports は通報を投稿タイトル付きで古い順に返す。
func (q *Queries) ListReports(ctx context.Context, arg ListReportsParams) ([]ReportWithListing, error) {
	query, args, err := sq.Select(
		"r.id", "r.listing_id", "r.reporter_id", "r.reason", "r.details", "r.status",
		"r.created_at", "r.handled_by", "r.handled_at",
		"l.title AS listing_title", "l.status AS listing_status",
	).
		From("reports r").
		Join("listings l ON l.id = r.listing_id").
		Where(arg.where()).
		OrderBy("r.created_at ASC", "r.id").
		Limit(arg.Limit).
		Offset(arg.Offset).
		ToSql()
	if err != nil {
		return nil, err
	}
	reports := []ReportWithListing{}
	if err := sqlx.SelectContext(ctx, q.db, &reports, query, args...); err != nil {
		return nil, err
	}
	return reports, nil
}

// CountReports は条件に一致する通報数を返す。
func (q *Queries) CountReports(ctx context.Context, arg ListReportsParams) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From("reports r").Where(arg.where()).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	err = sqlx.GetContext(ctx, q.db, &n, query, args...)
	return n, err
}

const closeReport = `
UPDATE reports
SET status = ?, handled_by = ?, handled_at = ?
WHERE id = ? AND status = 'open'
`

// CloseReport は未処理の通報を処理済み（dismissedまたはactioned）にする。
func (q *Queries) CloseReport(ctx context.Context, id, status, handledBy string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, closeReport, status, handledBy, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const closeOpenReportsForListing = `
UPDATE reports
SET status = 'actioned', handled_by = ?, handled_at = ?
WHERE listing_id = ? AND status = 'open'
`

// CloseOpenReportsForListing は投稿に対する未処理の通報をすべて対応済みにする。
func (q *Queries) CloseOpenReportsForListing(ctx context.Context, listingID, handledBy string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, closeOpenReportsForListing, handledBy, at, listingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
