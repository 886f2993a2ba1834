package db

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// Count はキーごとの件数。
type Count struct {
	Name  string `db:"name" json:"name"`
	Count int64  `db:"count" json:"count"`
}

const countByStatus = `SELECT status AS name, COUNT(*) AS count FROM listings GROUP BY status ORDER BY status`

// CountByStatus はステータスごとの投稿数を返す。
func (q *Queries) CountByStatus(ctx context.Context) ([]Count, error) {
	return q.counts(ctx, countByStatus)
}

const countByCategory = `SELECT category AS name, COUNT(*) AS count FROM listings GROUP BY category ORDER BY category`

// CountByCategory はカテゴリごとの投稿数を返す。
func (q *Queries) CountByCategory(ctx context.Context) ([]Count, error) {
	return q.counts(ctx, countByCategory)
}

const topCountries = `
SELECT country AS name, COUNT(*) AS count FROM listings
GROUP BY country
ORDER BY count DESC, country ASC
LIMIT ?
`

// TopCountries は投稿数の多い国を上位limit件返す。
func (q *Queries) TopCountries(ctx context.Context, limit int) ([]Count, error) {
	return q.counts(ctx, topCountries, limit)
}

const countOpenReports = `SELECT COUNT(*) FROM reports WHERE status = 'open'`

// CountOpenReports は未処理の通報数を返す。
func (q *Queries) CountOpenReports(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countOpenReports)
	return n, err
}

func (q *Queries) counts(ctx context.Context, query string, args ...any) ([]Count, error) {
	counts := []Count{}
	if err := sqlx.SelectContext(ctx, q.db, &counts, query, args...); err != nil {
		return nil, err
	}
	return counts, nil
}
