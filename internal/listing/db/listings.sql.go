package db

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

const listingColumns = `id, owner_id, owner_email, category, kind, title, description, country, city,
last_seen_place, event_date, contact_phone, reward, attributes, status, rejection_reason,
view_count, created_at, updated_at, published_at, resolved_at`

// FoldKey は大文字小文字を区別しない比較のためのキーを返す。
// SQLiteのLIKEとNOCASEはASCIIしか畳み込まないので、アクセント付きの文字もGo側で小文字化する。
func FoldKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// searchText は部分一致検索の対象となる文字列を返す。
func searchText(title, description, lastSeenPlace string) string {
	return strings.ToLower(title + "\n" + description + "\n" + lastSeenPlace)
}

// CreateListingParams はCreateListingの引数。
type CreateListingParams struct {
	ID            string
	OwnerID       string
	OwnerEmail    string
	Category      string
	Kind          string
	Title         string
	Description   string
	Country       string
	City          string
	LastSeenPlace string
	EventDate     string
	ContactPhone  string
	Reward        string
	Attributes    string
	Status        string
	CreatedAt     time.Time
}

const createListing = `
INSERT INTO listings (
    id, owner_id, owner_email, category, kind, title, description, country, city,
    city_key, last_seen_place, search_text, event_date, contact_phone, reward,
    attributes, status, created_at, updated_at, published_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// CreateListing は投稿を作成する。公開状態で作成する場合はpublished_atも設定する。
func (q *Queries) CreateListing(ctx context.Context, arg CreateListingParams) error {
	var publishedAt *time.Time
	if arg.Status == StatusPublished {
		publishedAt = &arg.CreatedAt
	}
	_, err := q.db.ExecContext(ctx, createListing,
		arg.ID, arg.OwnerID, arg.OwnerEmail, arg.Category, arg.Kind, arg.Title,
		arg.Description, arg.Country, arg.City, FoldKey(arg.City), arg.LastSeenPlace,
		searchText(arg.Title, arg.Description, arg.LastSeenPlace), arg.EventDate,
		arg.ContactPhone, arg.Reward, arg.Attributes, arg.Status,
		arg.CreatedAt, arg.CreatedAt, publishedAt,
	)
	return err
}

const getListing = `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`

// GetListing はIDで投稿を取得する。
func (q *Queries) GetListing(ctx context.Context, id string) (Listing, error) {
	var l Listing
	err := sqlx.GetContext(ctx, q.db, &l, getListing, id)
	return l, err
}

// UpdateListingParams はUpdateListingの引数。
type UpdateListingParams struct {
	ID            string
	Title         string
	Description   string
	Country       string
	City          string
	LastSeenPlace string
	EventDate     string
	ContactPhone  string
	Reward        string
	Attributes    string
	Status        string
	UpdatedAt     time.Time
}

// 解決済みの投稿は編集できない。
const updateListing = `
UPDATE listings
SET title = ?, description = ?, country = ?, city = ?, city_key = ?, last_seen_place = ?,
    search_text = ?, event_date = ?, contact_phone = ?, reward = ?, attributes = ?, status = ?,
    rejection_reason = '', updated_at = ?
WHERE id = ? AND status <> 'resolved'
`

// UpdateListing は投稿の内容を更新し、更新された行数を返す。
func (q *Queries) UpdateListing(ctx context.Context, arg UpdateListingParams) (int64, error) {
	res, err := q.db.ExecContext(ctx, updateListing,
		arg.Title, arg.Description, arg.Country, arg.City, FoldKey(arg.City), arg.LastSeenPlace,
		searchText(arg.Title, arg.Description, arg.LastSeenPlace), arg.EventDate,
		arg.ContactPhone, arg.Reward, arg.Attributes, arg.Status,
		arg.UpdatedAt, arg.ID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const publishListing = `
UPDATE listings
SET status = 'published', rejection_reason = '', updated_at = ?, published_at = COALESCE(published_at, ?)
WHERE id = ? AND status = 'pending'
`

// PublishListing は審査待ちの投稿を公開する。対象が審査待ちでない場合は0を返す。
func (q *Queries) PublishListing(ctx context.Context, id string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, publishListing, at, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const rejectListing = `
UPDATE listings
SET status = 'rejected', rejection_reason = ?, updated_at = ?
WHERE id = ? AND status IN ('pending', 'published')
`

// RejectListing は審査待ちまたは公開中の投稿を却下する。
func (q *Queries) RejectListing(ctx context.Context, id, reason string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, rejectListing, reason, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const resolveListing = `
UPDATE listings
SET status = 'resolved', updated_at = ?, resolved_at = ?
WHERE id = ? AND status IN ('pending', 'published')
`

// ResolveListing は投稿を解決済み（見つかった）にする。
func (q *Queries) ResolveListing(ctx context.Context, id string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, resolveListing, at, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const incrementViewCount = `UPDATE listings SET view_count = view_count + 1 WHERE id = ?`

// IncrementViewCount は閲覧数を1増やす。
func (q *Queries) IncrementViewCount(ctx context.Context, id string) error {
	_, err := q.db.ExecContext(ctx, incrementViewCount, id)
	return err
}

const deleteListing = `DELETE FROM listings WHERE id = ?`

// DeleteListing は投稿を削除する。写真と通報は外部キーのCASCADEで削除される。
func (q *Queries) DeleteListing(ctx context.Context, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteListing, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
