package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeListing は投稿（行方不明者・迷子の動物・落とし物）を表す。
	AggregateTypeListing AggregateType = "Listing"
	// AggregateTypeReport は投稿への通報を表す。
	AggregateTypeReport AggregateType = "Report"
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeListingSubmitted は投稿が審査待ちで作成・更新されたことを表す。
	TypeListingSubmitted Type = "ListingSubmitted"
	// TypeListingPublished は投稿が公開されたことを表す。
	TypeListingPublished Type = "ListingPublished"
	// TypeListingRejected は投稿が却下されたことを表す。
	TypeListingRejected Type = "ListingRejected"
	// TypeListingResolved は投稿が解決済み（見つかった）になったことを表す。
	TypeListingResolved Type = "ListingResolved"
	// TypeListingDeleted は投稿が削除されたことを表す。
	TypeListingDeleted Type = "ListingDeleted"

	// TypeReportFiled は投稿が通報されたことを表す。
	TypeReportFiled Type = "ReportFiled"
	// TypeContactRequested は投稿者への連絡メッセージが送られたことを表す。
	TypeContactRequested Type = "ContactRequested"
)

// Event はサービス間で受け渡される不変のイベントレコードを表す。
// listingサービスが発行し、notificationサービスが受け取って通知に展開する。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version はAggregate内でのイベントの順序番号。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// ListingData は投稿に関するイベントのデータ。
// ListingSubmitted、ListingPublished、ListingResolved、ListingDeletedで使う。
type ListingData struct {
	// ListingID は投稿のID。
	ListingID string `json:"listing_id"`
	// OwnerID は投稿者のユーザーID。
	OwnerID string `json:"owner_id"`
	// OwnerEmail は投稿者のメールアドレス。
	OwnerEmail string `json:"owner_email"`
	// Category は投稿のカテゴリ（person, animal, object）。
	Category string `json:"category"`
	// Kind は lost（探している）か found（見つけた）。
	Kind string `json:"kind"`
	// Title は投稿のタイトル。
	Title string `json:"title"`
	// Country はISO 3166-1 alpha-2の国コード。
	Country string `json:"country"`
	// City は都市名。
	City string `json:"city"`
	// LastSeenPlace は最後に目撃された、または発見された場所。
	LastSeenPlace string `json:"last_seen_place,omitempty"`
	// EventDate は失踪・発見の日付（YYYY-MM-DD）。
	EventDate string `json:"event_date,omitempty"`
}

// ListingRejectedData はListingRejectedイベントのデータ。
type ListingRejectedData struct {
	ListingData
	// Reason は却下の理由。
	Reason string `json:"reason"`
}

// ReportFiledData はReportFiledイベントのデータ。
type ReportFiledData struct {
	// ReportID は通報のID。
	ReportID string `json:"report_id"`
	// ListingID は通報された投稿のID。
	ListingID string `json:"listing_id"`
	// ListingTitle は通報された投稿のタイトル。
	ListingTitle string `json:"listing_title"`
	// ReporterID は通報したユーザーのID。
	ReporterID string `json:"reporter_id"`
	// Reason は通報の理由。
	Reason string `json:"reason"`
	// Details は通報の詳細。
	Details string `json:"details,omitempty"`
}

// ContactRequestedData はContactRequestedイベントのデータ。
type ContactRequestedData struct {
	// ListingID は連絡対象の投稿のID。
	ListingID string `json:"listing_id"`
	// ListingTitle は連絡対象の投稿のタイトル。
	ListingTitle string `json:"listing_title"`
	// OwnerID は投稿者のユーザーID。
	OwnerID string `json:"owner_id"`
	// OwnerEmail は投稿者のメールアドレス。
	OwnerEmail string `json:"owner_email"`
	// SenderName は送信者の名前。
	SenderName string `json:"sender_name"`
	// SenderEmail は送信者のメールアドレス。返信先になる。
	SenderEmail string `json:"sender_email"`
	// SenderPhone は送信者の電話番号。
	SenderPhone string `json:"sender_phone,omitempty"`
	// Message は送信者のメッセージ。
	Message string `json:"message"`
}
