package db

import (
	"database/sql"
	"time"
)

// 投稿ステータス。
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusRejected  = "rejected"
	StatusResolved  = "resolved"
)

// 通報ステータス。
const (
	ReportOpen      = "open"
	ReportDismissed = "dismissed"
	ReportActioned  = "actioned"
)

// Listing はlistingsテーブルの1行。
type Listing struct {
	ID              string       `db:"id"`
	OwnerID         string       `db:"owner_id"`
	OwnerEmail      string       `db:"owner_email"`
	Category        string       `db:"category"`
	Kind            string       `db:"kind"`
	Title           string       `db:"title"`
	Description     string       `db:"description"`
	Country         string       `db:"country"`
	City            string       `db:"city"`
	LastSeenPlace   string       `db:"last_seen_place"`
	EventDate       string       `db:"event_date"`
	ContactPhone    string       `db:"contact_phone"`
	Reward          string       `db:"reward"`
	Attributes      string       `db:"attributes"`
	Status          string       `db:"status"`
	RejectionReason string       `db:"rejection_reason"`
	ViewCount       int64        `db:"view_count"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
	PublishedAt     sql.NullTime `db:"published_at"`
	ResolvedAt      sql.NullTime `db:"resolved_at"`
}

// IsPublic は一般公開されるステータスかどうかを返す。
func (l Listing) IsPublic() bool {
	return l.Status == StatusPublished || l.Status == StatusResolved
}

// Photo はlisting_photosテーブルの1行。
type Photo struct {
	ID           string    `db:"id"`
	ListingID    string    `db:"listing_id"`
	StorageKey   string    `db:"storage_key"`
	ThumbnailKey string    `db:"thumbnail_key"`
	ContentType  string    `db:"content_type"`
	Size         int64     `db:"size"`
	CreatedAt    time.Time `db:"created_at"`
}

// Report はreportsテーブルの1行。
type Report struct {
	ID         string       `db:"id"`
	ListingID  string       `db:"listing_id"`
	ReporterID string       `db:"reporter_id"`
	Reason     string       `db:"reason"`
	Details    string       `db:"details"`
	Status     string       `db:"status"`
	CreatedAt  time.Time    `db:"created_at"`
	HandledBy  string       `db:"handled_by"`
	HandledAt  sql.NullTime `db:"handled_at"`
}

// ReportWithListing は管理画面向けに投稿タイトルを結合した通報。
type ReportWithListing struct {
	Report
	ListingTitle  string `db:"listing_title"`
	ListingStatus string `db:"listing_status"`
}
