package listing

import (
	"encoding/json"
	"time"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// photoPathPrefix は写真配信APIのパス。キーを連結してURLにする。
const photoPathPrefix = "/api/v1/photos/"

// photoResponse は写真のレスポンス。
type photoResponse struct {
	ID           string    `json:"id"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
	ContentType  string    `json:"content_type"`
	Size         int64     `json:"size"`
	CreatedAt    time.Time `json:"created_at"`
}

func toPhotoResponse(p listingdb.Photo) photoResponse {
	resp := photoResponse{
		ID:          p.ID,
		URL:         photoPathPrefix + p.StorageKey,
		ContentType: p.ContentType,
		Size:        p.Size,
		CreatedAt:   p.CreatedAt,
	}
	if p.ThumbnailKey != "" {
		resp.ThumbnailURL = photoPathPrefix + p.ThumbnailKey
	}
	return resp
}

// listingResponse は投稿のレスポンス。
// 投稿者のメールアドレスと却下理由は投稿者本人とスタッフにのみ返す。
type listingResponse struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"owner_id"`
	OwnerEmail      string          `json:"owner_email,omitempty"`
	Category        string          `json:"category"`
	CategoryLabel   string          `json:"category_label"`
	Kind            string          `json:"kind"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Country         string          `json:"country"`
	CountryName     string          `json:"country_name"`
	City            string          `json:"city"`
	LastSeenPlace   string          `json:"last_seen_place"`
	EventDate       string          `json:"event_date"`
	ContactPhone    string          `json:"contact_phone,omitempty"`
	Reward          string          `json:"reward,omitempty"`
	Attributes      json.RawMessage `json:"attributes"`
	Status          string          `json:"status"`
	RejectionReason string          `json:"rejection_reason,omitempty"`
	ViewCount       int64           `json:"view_count"`
	Photos          []photoResponse `json:"photos"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	PublishedAt     *time.Time      `json:"published_at,omitempty"`
	ResolvedAt      *time.Time      `json:"resolved_at,omitempty"`
}

func toListingResponse(l listingdb.Listing, photos []listingdb.Photo, private bool) listingResponse {
	attrs := l.Attributes
	if attrs == "" {
		attrs = "{}"
	}
	resp := listingResponse{
		ID:            l.ID,
		OwnerID:       l.OwnerID,
		Category:      l.Category,
		CategoryLabel: validation.CategoryLabel(l.Category),
		Kind:          l.Kind,
		Title:         l.Title,
		Description:   l.Description,
		Country:       l.Country,
		CountryName:   validation.CountryName(l.Country),
		City:          l.City,
		LastSeenPlace: l.LastSeenPlace,
		EventDate:     l.EventDate,
		ContactPhone:  l.ContactPhone,
		Reward:        l.Reward,
		Attributes:    json.RawMessage(attrs),
		Status:        l.Status,
		ViewCount:     l.ViewCount,
		Photos:        make([]photoResponse, 0, len(photos)),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	for _, p := range photos {
		resp.Photos = append(resp.Photos, toPhotoResponse(p))
	}
	if l.PublishedAt.Valid {
		t := l.PublishedAt.Time
		resp.PublishedAt = &t
	}
	if l.ResolvedAt.Valid {
		t := l.ResolvedAt.Time
		resp.ResolvedAt = &t
	}
	if private {
		resp.OwnerEmail = l.OwnerEmail
		resp.RejectionReason = l.RejectionReason
	}
	return resp
}

// listPage は一覧APIのレスポンス。
type listPage struct {
	Listings []listingResponse `json:"listings"`
	Total    int64             `json:"total"`
	Page     uint64            `json:"page"`
	PerPage  uint64            `json:"per_page"`
}
