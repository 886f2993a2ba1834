package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const photoColumns = `id, listing_id, storage_key, thumbnail_key, content_type, size, created_at`

// CreatePhotoParams はCreatePhotoの引数。
type CreatePhotoParams struct {
	ID           string
	ListingID    string
	StorageKey   string
	ThumbnailKey string
	ContentType  string
	Size         int64
	CreatedAt    time.Time
}

const createPhoto = `
INSERT INTO listing_photos (id, listing_id, storage_key, thumbnail_key, content_type, size, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`

// CreatePhoto は写真のメタデータを登録する。
func (q *Queries) CreatePhoto(ctx context.Context, arg CreatePhotoParams) error {
	_, err := q.db.ExecContext(ctx, createPhoto,
		arg.ID, arg.ListingID, arg.StorageKey, arg.ThumbnailKey,
		arg.ContentType, arg.Size, arg.CreatedAt,
	)
	return err
}

const getPhoto = `SELECT ` + photoColumns + ` FROM listing_photos WHERE id = ? AND listing_id = ?`

// GetPhoto は投稿に属する写真を取得する。
func (q *Queries) GetPhoto(ctx context.Context, listingID, id string) (Photo, error) {
	var p Photo
	err := sqlx.GetContext(ctx, q.db, &p, getPhoto, id, listingID)
	return p, err
}

const getPhotoByKey = `
SELECT ` + photoColumns + ` FROM listing_photos
WHERE storage_key = ? OR thumbnail_key = ?
LIMIT 1
`

// GetPhotoByKey は元画像またはサムネイルのキーから写真を取得する。
func (q *Queries) GetPhotoByKey(ctx context.Context, key string) (Photo, error) {
	var p Photo
	err := sqlx.GetContext(ctx, q.db, &p, getPhotoByKey, key, key)
	return p, err
}

const listPhotos = `SELECT ` + photoColumns + ` FROM listing_photos WHERE listing_id = ? ORDER BY created_at, id`

// ListPhotos は投稿の写真を登録順に返す。
func (q *Queries) ListPhotos(ctx context.Context, listingID string) ([]Photo, error) {
	photos := []Photo{}
	if err := sqlx.SelectContext(ctx, q.db, &photos, listPhotos, listingID); err != nil {
		return nil, err
	}
	return photos, nil
}

const listPhotosForListings = `SELECT ` + photoColumns + ` FROM listing_photos WHERE listing_id IN (?) ORDER BY created_at, id`

// ListPhotosForListings は複数の投稿の写真をまとめて取得し、投稿IDごとに分けて返す。
func (q *Queries) ListPhotosForListings(ctx context.Context, listingIDs []string) (map[string][]Photo, error) {
	out := make(map[string][]Photo, len(listingIDs))
	if len(listingIDs) == 0 {
		return out, nil
	}
	query, args, err := sqlx.In(listPhotosForListings, listingIDs)
	if err != nil {
		return nil, err
	}
	var photos []Photo
	if err := sqlx.SelectContext(ctx, q.db, &photos, q.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range photos {
		out[p.ListingID] = append(out[p.ListingID], p)
	}
	return out, nil
}

const countPhotos = `SELECT COUNT(*) FROM listing_photos WHERE listing_id = ?`

// CountPhotos は投稿の写真の枚数を返す。
func (q *Queries) CountPhotos(ctx context.Context, listingID string) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countPhotos, listingID)
	return n, err
}

const deletePhoto = `DELETE FROM listing_photos WHERE id = ? AND listing_id = ?`

// DeletePhoto は写真のメタデータを削除する。
func (q *Queries) DeletePhoto(ctx context.Context, listingID, id string) (int64, error) {
	res, err := q.db.ExecContext(ctx, deletePhoto, id, listingID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
