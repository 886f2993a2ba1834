package listing

import (
	"net/http"
	"testing"

	"github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

func TestAdminRoleGate(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	paths := []string{"/api/v1/admin/listings", "/api/v1/admin/reports", "/api/v1/admin/stats"}

	for _, path := range paths {
		if w := env.doJSON(t, http.MethodGet, path, "", nil); w.Code != http.StatusUnauthorized {
			t.Errorf("%s 未認証: ステータスコード = %d, want %d", path, w.Code, http.StatusUnauthorized)
		}
		if w := env.doJSON(t, http.MethodGet, path, tokenFor(t, "user", middleware.RoleUser), nil); w.Code != http.StatusForbidden {
			t.Errorf("%s 一般利用者: ステータスコード = %d, want %d", path, w.Code, http.StatusForbidden)
		}
		if w := env.doJSON(t, http.MethodGet, path, tokenFor(t, "mod", middleware.RoleModerator), nil); w.Code != http.StatusOK {
			t.Errorf("%s モデレーター: ステータスコード = %d, want %d", path, w.Code, http.StatusOK)
		}
	}
}

func TestModeration(t *testing.T) {
	t.Parallel()

	t.Run("正常系_審査待ち一覧から承認すると公開されListingPublishedが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		mod := tokenFor(t, "mod", middleware.RoleModerator)
		first := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		second := env.createListing(t, tokenFor(t, "owner-2", middleware.RoleUser), nil)

		page := decode[listPage](t, env.doJSON(t, http.MethodGet, "/api/v1/admin/listings", mod, nil))
		if page.Total != 2 || page.Listings[0].ID != first.ID || page.Listings[1].ID != second.ID {
			t.Fatalf("審査待ち一覧が古い順になっていない: %+v", page)
		}
		if page.Listings[0].OwnerEmail == "" {
			t.Error("スタッフにはowner_emailが返るべき")
		}

		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+first.ID+"/approve", mod, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		got := decode[listingResponse](t, w)
		if got.Status != db.StatusPublished || got.PublishedAt == nil {
			t.Errorf("status = %q, published_at = %v", got.Status, got.PublishedAt)
		}
		if env.notifier.last(t).EventType != event.TypeListingPublished {
			t.Errorf("イベント = %s, want ListingPublished", env.notifier.last(t).EventType)
		}

		// 公開中の投稿を再度承認すると409
		if w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+first.ID+"/approve", mod, nil); w.Code != http.StatusConflict {
			t.Errorf("再承認のステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("正常系_却下すると理由付きでListingRejectedが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+l.ID+"/reject", tokenFor(t, "admin", middleware.RoleAdmin), map[string]string{"reason": "informations insuffisantes"})
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		data, err := event.DecodeData[event.ListingRejectedData](env.notifier.last(t))
		if err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if data.Reason != "informations insuffisantes" || data.OwnerEmail != "owner-1@example.com" {
			t.Errorf("イベントデータ = %+v", data)
		}

		// 投稿者には却下理由が見える
		got := decode[listingResponse](t, env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, owner, nil))
		if got.RejectionReason != "informations insuffisantes" {
			t.Errorf("rejection_reason = %q", got.RejectionReason)
		}
	})

	t.Run("異常系_理由の無い却下は400を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+l.ID+"/reject", tokenFor(t, "mod", middleware.RoleModerator), map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("異常系_不正なステータス指定は400を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		w := env.doJSON(t, http.MethodGet, "/api/v1/admin/listings?status=archived", tokenFor(t, "mod", middleware.RoleModerator), nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

// reportsPage は通報一覧のレスポンス。
type reportsPage struct {
	Reports []reportResponse `json:"reports"`
	Total   int64            `json:"total"`
}

func TestReportHandling(t *testing.T) {
	t.Parallel()

	// fileReports は公開中の投稿に2件の通報をつくる。
	fileReports := func(t *testing.T, env *testEnv) (listingResponse, []reportResponse) {
		t.Helper()
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		for _, reporter := range []string{"r1", "r2"} {
			w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/reports", tokenFor(t, reporter, middleware.RoleUser), map[string]string{"reason": "fake"})
			if w.Code != http.StatusCreated {
				t.Fatalf("通報に失敗: %d %s", w.Code, w.Body.String())
			}
		}
		page := decode[reportsPage](t, env.doJSON(t, http.MethodGet, "/api/v1/admin/reports", tokenFor(t, "mod", middleware.RoleModerator), nil))
		if page.Total != 2 {
			t.Fatalf("未処理の通報数 = %d, want 2", page.Total)
		}
		return l, page.Reports
	}

	t.Run("正常系_通報を却下すると対応不要になり投稿は残る", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		mod := tokenFor(t, "mod", middleware.RoleModerator)
		l, reports := fileReports(t, env)
		if reports[0].ListingTitle != l.Title {
			t.Errorf("listing_title = %q, want %q", reports[0].ListingTitle, l.Title)
		}

		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/reports/"+reports[0].ID+"/dismiss", mod, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		if w := env.doJSON(t, http.MethodPost, "/api/v1/admin/reports/"+reports[0].ID+"/dismiss", mod, nil); w.Code != http.StatusConflict {
			t.Errorf("2回目のステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}

		dismissed := decode[reportsPage](t, env.doJSON(t, http.MethodGet, "/api/v1/admin/reports?status=dismissed", mod, nil))
		if dismissed.Total != 1 || dismissed.Reports[0].HandledBy != "mod" || dismissed.Reports[0].HandledAt == nil {
			t.Errorf("却下済みの通報 = %+v", dismissed)
		}
		got := decode[listingResponse](t, env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, "", nil))
		if got.Status != db.StatusPublished {
			t.Errorf("投稿のstatus = %q, want published", got.Status)
		}
	})

	t.Run("正常系_通報に対応すると投稿が却下され未処理の通報がすべて閉じる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		mod := tokenFor(t, "mod", middleware.RoleModerator)
		l, reports := fileReports(t, env)

		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/reports/"+reports[1].ID+"/action", mod, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		resp := decode[map[string]any](t, w)
		if resp["closed_reports"] != float64(2) || resp["listing_status"] != db.StatusRejected {
			t.Errorf("レスポンス = %v", resp)
		}

		open := decode[reportsPage](t, env.doJSON(t, http.MethodGet, "/api/v1/admin/reports", mod, nil))
		if open.Total != 0 {
			t.Errorf("未処理の通報数 = %d, want 0", open.Total)
		}
		if w := env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, "", nil); w.Code != http.StatusNotFound {
			t.Errorf("却下された投稿の公開ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}

		ev := env.notifier.last(t)
		if ev.EventType != event.TypeListingRejected {
			t.Fatalf("イベント = %s, want ListingRejected", ev.EventType)
		}
		data, _ := event.DecodeData[event.ListingRejectedData](ev)
		if data.Reason == "" {
			t.Error("却下理由が空")
		}
	})

	t.Run("異常系_存在しない通報は404を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		w := env.doJSON(t, http.MethodPost, "/api/v1/admin/reports/missing/dismiss", tokenFor(t, "mod", middleware.RoleModerator), nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

// statsResponse は統計APIのレスポンス。
type statsResponse struct {
	Total        int64      `json:"total"`
	ByStatus     []db.Count `json:"by_status"`
	ByCategory   []db.Count `json:"by_category"`
	TopCountries []db.Count `json:"top_countries"`
	OpenReports  int64      `json:"open_reports"`
}

func TestHandleStats(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, true)
	env.createListing(t, tokenFor(t, "a", middleware.RoleUser), nil)
	env.createListing(t, tokenFor(t, "b", middleware.RoleUser), map[string]any{"country": "SN"})
	env.createListing(t, tokenFor(t, "c", middleware.RoleUser), map[string]any{"category": "object"})

	w := env.doJSON(t, http.MethodGet, "/api/v1/admin/stats", tokenFor(t, "admin", middleware.RoleAdmin), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	stats := decode[statsResponse](t, w)

	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if len(stats.ByStatus) != 1 || stats.ByStatus[0] != (db.Count{Name: "pending", Count: 3}) {
		t.Errorf("by_status = %+v", stats.ByStatus)
	}
	wantCategories := []db.Count{{Name: "animal", Count: 2}, {Name: "object", Count: 1}}
	if len(stats.ByCategory) != 2 || stats.ByCategory[0] != wantCategories[0] || stats.ByCategory[1] != wantCategories[1] {
		t.Errorf("by_category = %+v, want %+v", stats.ByCategory, wantCategories)
	}
	if len(stats.TopCountries) != 2 || stats.TopCountries[0] != (db.Count{Name: "CI", Count: 2}) {
		t.Errorf("top_countries = %+v", stats.TopCountries)
	}
	if stats.OpenReports != 0 {
		t.Errorf("open_reports = %d, want 0", stats.OpenReports)
	}
}
