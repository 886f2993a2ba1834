package event

import (
	"encoding/json"
	"strings"
	"testing"
)

// TestTypeConstants はイベント種別の文字列値を検証する。
// notificationサービスはこの値でディスパッチするため、変更は互換性を壊す。
func TestTypeConstants(t *testing.T) {
	t.Parallel()

	tests := []struct {
		got  Type
		want string
	}{
		{got: TypeListingSubmitted, want: "ListingSubmitted"},
		{got: TypeListingPublished, want: "ListingPublished"},
		{got: TypeListingRejected, want: "ListingRejected"},
		{got: TypeListingResolved, want: "ListingResolved"},
		{got: TypeListingDeleted, want: "ListingDeleted"},
		{got: TypeReportFiled, want: "ReportFiled"},
		{got: TypeContactRequested, want: "ContactRequested"},
	}

	for _, tt := range tests {
		t.Run(tt.want+"の値が正しいこと", func(t *testing.T) {
			t.Parallel()
			if string(tt.got) != tt.want {
				t.Errorf("Type = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

// TestListingRejectedDataJSON は埋め込みフィールドがフラットにシリアライズされることを検証する。
func TestListingRejectedDataJSON(t *testing.T) {
	t.Parallel()

	data := ListingRejectedData{
		ListingData: ListingData{
			ListingID:  "listing-1",
			OwnerEmail: "owner@example.com",
			Title:      "Chien perdu à Dakar",
		},
		Reason: "photo inappropriée",
	}

	b, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("json.Marshal()でエラーが発生: %v", err)
	}
	s := string(b)
	for _, want := range []string{`"listing_id":"listing-1"`, `"owner_email":"owner@example.com"`, `"reason":"photo inappropriée"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSONに %s が含まれていない: %s", want, s)
		}
	}
	if strings.Contains(s, "ListingData") {
		t.Errorf("埋め込み構造体名がJSONに現れている: %s", s)
	}
}

// TestEventJSONFieldNames はEventのJSONフィールド名を検証する。
func TestEventJSONFieldNames(t *testing.T) {
	t.Parallel()

	ev, err := New("listing-9", AggregateTypeListing, TypeListingPublished, 1, ListingData{ListingID: "listing-9"})
	if err != nil {
		t.Fatalf("New()でエラーが発生: %v", err)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("json.Marshal()でエラーが発生: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		t.Fatalf("json.Unmarshal()でエラーが発生: %v", err)
	}
	for _, key := range []string{"id", "aggregate_id", "aggregate_type", "event_type", "data", "version", "created_at"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("JSONにキー %q が無い", key)
		}
	}
}
