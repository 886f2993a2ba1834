package listing

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"testing"

	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

func TestHandleCreateListing(t *testing.T) {
	t.Parallel()

	t.Run("正常系_モデレーション有効時は審査待ちで作成されListingSubmittedが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		if l.Status != "pending" {
			t.Errorf("status = %q, want %q", l.Status, "pending")
		}
		if l.Country != "CI" {
			t.Errorf("country = %q, want 大文字に正規化された %q", l.Country, "CI")
		}
		if l.CountryName != "Côte d'Ivoire" {
			t.Errorf("country_name = %q", l.CountryName)
		}
		if l.OwnerEmail != "owner-1@example.com" {
			t.Errorf("投稿者本人にはowner_emailが返るべき: %q", l.OwnerEmail)
		}
		if l.PublishedAt != nil {
			t.Error("審査待ちの投稿にpublished_atが設定されている")
		}
		if got := env.notifier.types(); !slices.Equal(got, []event.Type{event.TypeListingSubmitted}) {
			t.Errorf("送信イベント = %v, want [ListingSubmitted]", got)
		}
	})

	t.Run("正常系_モデレーション無効時は即時公開されListingPublishedが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		if l.Status != "published" {
			t.Errorf("status = %q, want %q", l.Status, "published")
		}
		if l.PublishedAt == nil {
			t.Error("公開された投稿にpublished_atが無い")
		}
		ev := env.notifier.last(t)
		if ev.EventType != event.TypeListingPublished {
			t.Fatalf("イベント = %s, want ListingPublished", ev.EventType)
		}
		data, err := event.DecodeData[event.ListingData](ev)
		if err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if data.ListingID != l.ID || data.Country != "CI" || data.Category != "animal" {
			t.Errorf("イベントデータ = %+v", data)
		}
	})

	t.Run("正常系_カテゴリに関係しない属性は保存されない", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		var attrs map[string]any
		if err := json.Unmarshal(l.Attributes, &attrs); err != nil {
			t.Fatalf("属性のデコードに失敗: %v", err)
		}
		if _, ok := attrs["full_name"]; ok {
			t.Error("動物の投稿にfull_nameが保存されている")
		}
		if attrs["species"] != "chien" {
			t.Errorf("species = %v, want chien", attrs["species"])
		}
	})

	t.Run("正常系_通知の送信に失敗しても投稿は作成される", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		env.notifier.err = errors.New("notification down")
		env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
	})

	tests := []struct {
		name      string
		overrides map[string]any
	}{
		{name: "異常系_アフリカ以外の国コード", overrides: map[string]any{"country": "FR"}},
		{name: "異常系_未知のカテゴリ", overrides: map[string]any{"category": "vehicle"}},
		{name: "異常系_未知の種別", overrides: map[string]any{"kind": "stolen"}},
		{name: "異常系_タイトルが短すぎる", overrides: map[string]any{"title": "abc"}},
		{name: "異常系_日付の形式が不正", overrides: map[string]any{"event_date": "20/02/2026"}},
		{name: "異常系_未来の日付", overrides: map[string]any{"event_date": "2999-01-01"}},
		{name: "異常系_年齢が範囲外", overrides: map[string]any{"category": "person", "attributes": map[string]any{"age": 200}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t, true)
			w := env.doJSON(t, http.MethodPost, "/api/v1/listings", tokenFor(t, "owner-1", middleware.RoleUser), listingBody(tt.overrides))
			if w.Code != http.StatusBadRequest {
				t.Errorf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
		})
	}

	t.Run("異常系_未認証の場合401を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		w := env.doJSON(t, http.MethodPost, "/api/v1/listings", "", listingBody(nil))
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})
}

func TestHandleGetListing(t *testing.T) {
	t.Parallel()

	t.Run("正常系_投稿者以外の閲覧で閲覧数が増える", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		// 匿名の閲覧
		w := env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		got := decode[listingResponse](t, w)
		if got.ViewCount != 1 {
			t.Errorf("view_count = %d, want 1", got.ViewCount)
		}
		if got.OwnerEmail != "" {
			t.Error("匿名の閲覧者にowner_emailが返されている")
		}

		// 投稿者本人の閲覧は数えない
		w = env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, owner, nil)
		got = decode[listingResponse](t, w)
		if got.ViewCount != 1 {
			t.Errorf("投稿者の閲覧後 view_count = %d, want 1", got.ViewCount)
		}
	})

	t.Run("正常系_審査待ちの投稿は投稿者とスタッフだけが閲覧できる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		path := "/api/v1/listings/" + l.ID

		cases := []struct {
			name  string
			token string
			want  int
		}{
			{name: "匿名", token: "", want: http.StatusNotFound},
			{name: "他の利用者", token: tokenFor(t, "other", middleware.RoleUser), want: http.StatusNotFound},
			{name: "投稿者", token: tokenFor(t, "owner-1", middleware.RoleUser), want: http.StatusOK},
			{name: "モデレーター", token: tokenFor(t, "mod", middleware.RoleModerator), want: http.StatusOK},
		}
		for _, c := range cases {
			w := env.doJSON(t, http.MethodGet, path, c.token, nil)
			if w.Code != c.want {
				t.Errorf("%s: ステータスコード = %d, want %d", c.name, w.Code, c.want)
			}
		}
	})

	t.Run("異常系_存在しない投稿は404を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		w := env.doJSON(t, http.MethodGet, "/api/v1/listings/missing", "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}

func TestHandleSearchListings(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	alice := tokenFor(t, "alice", middleware.RoleUser)
	bob := tokenFor(t, "bob", middleware.RoleUser)

	dog := env.createListing(t, alice, nil)
	cat := env.createListing(t, alice, map[string]any{
		"title":           "Chat trouvé près de Plateau",
		"kind":            "found",
		"description":     "Chat tigré, très calme",
		"last_seen_place": "Rue du Commerce",
		"event_date":      "2026-01-05",
	})
	person := env.createListing(t, bob, map[string]any{
		"category":        "person",
		"title":           "Disparition de Fatou Ndiaye",
		"description":     "Vue pour la dernière fois en robe bleue",
		"country":         "SN",
		"city":            "Dakar",
		"last_seen_place": "Gare routière des Baux maraîchers",
		"event_date":      "2026-02-25",
		"attributes":      map[string]any{"full_name": "Fatou Ndiaye", "age": 16, "gender": "female"},
	})
	phone := env.createListing(t, bob, map[string]any{
		"category":        "object",
		"title":           "Téléphone perdu dans un taxi",
		"description":     "Tecno Camon noir, coque 100% cuir",
		"country":         "SN",
		"city":            "Thiès",
		"last_seen_place": "Taxi",
		"event_date":      "2026-02-10",
		"attributes":      map[string]any{"object_type": "téléphone", "brand": "Tecno"},
	})

	// 解決済みと審査待ち（再審査）をつくる
	if w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+phone.ID+"/resolve", bob, nil); w.Code != http.StatusOK {
		t.Fatalf("解決に失敗: %d %s", w.Code, w.Body.String())
	}
	rejectBody := map[string]string{"reason": "photo manquante"}
	if w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+cat.ID+"/reject", tokenFor(t, "mod", middleware.RoleModerator), rejectBody); w.Code != http.StatusOK {
		t.Fatalf("却下に失敗: %d %s", w.Code, w.Body.String())
	}

	ids := func(p listPage) []string {
		out := make([]string, 0, len(p.Listings))
		for _, l := range p.Listings {
			out = append(out, l.ID)
		}
		return out
	}

	tests := []struct {
		name  string
		query string
		token string
		want  []string
		total int64
	}{
		{name: "正常系_既定は公開中のみ新しい順", query: "", want: []string{person.ID, dog.ID}, total: 2},
		{name: "正常系_古い順", query: "?sort=oldest", want: []string{dog.ID, person.ID}, total: 2},
		{name: "正常系_出来事の日付順", query: "?sort=event_date&status=published", want: []string{person.ID, dog.ID}, total: 2},
		{name: "正常系_カテゴリで絞り込む", query: "?category=person", want: []string{person.ID}, total: 1},
		{name: "正常系_国コードは大文字小文字を区別しない", query: "?country=sn", want: []string{person.ID}, total: 1},
		{name: "正常系_都市は大文字小文字を区別しない", query: "?city=ABIDJAN", want: []string{dog.ID}, total: 1},
		{name: "正常系_アクセント付きの大文字のキーワードも一致する", query: "?q=T%C3%89L%C3%89PHONE&status=resolved", want: []string{phone.ID}, total: 1},
		{name: "正常系_アクセント付きの大文字の都市も一致する", query: "?city=THI%C3%88S&status=resolved", want: []string{phone.ID}, total: 1},
		{name: "正常系_キーワードは場所にも一致する", query: "?q=baux", want: []string{person.ID}, total: 1},
		{name: "正常系_キーワードは説明にも一致する", query: "?q=COLLIER", want: []string{dog.ID}, total: 1},
		{name: "正常系_ワイルドカード文字はそのまま検索される", query: "?q=100%25&status=resolved", want: []string{phone.ID}, total: 1},
		{name: "正常系_ワイルドカード文字は他に一致しない", query: "?q=%25", want: []string{}, total: 0},
		{name: "正常系_日付範囲で絞り込む", query: "?from=2026-02-21&to=2026-02-28", want: []string{person.ID}, total: 1},
		{name: "正常系_解決済みを検索できる", query: "?status=resolved", want: []string{phone.ID}, total: 1},
		{name: "正常系_ページング", query: "?per_page=1&page=2", want: []string{dog.ID}, total: 2},
		{name: "正常系_自分の投稿は全ステータス", query: "?owner=me", token: alice, want: []string{cat.ID, dog.ID}, total: 2},
		{name: "正常系_自分の却下された投稿", query: "?owner=me&status=rejected", token: alice, want: []string{cat.ID}, total: 1},
		{name: "正常系_スタッフは却下された投稿を検索できる", query: "?status=rejected", token: tokenFor(t, "mod", middleware.RoleModerator), want: []string{cat.ID}, total: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := env.doJSON(t, http.MethodGet, "/api/v1/listings"+tt.query, tt.token, nil)
			if w.Code != http.StatusOK {
				t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
			}
			page := decode[listPage](t, w)
			if got := ids(page); !slices.Equal(got, tt.want) {
				t.Errorf("listings = %v, want %v", got, tt.want)
			}
			if page.Total != tt.total {
				t.Errorf("total = %d, want %d", page.Total, tt.total)
			}
		})
	}

	badRequests := []struct {
		name  string
		query string
		token string
		want  int
	}{
		{name: "異常系_未知の並び順", query: "?sort=price", want: http.StatusBadRequest},
		{name: "異常系_SQLを含む並び順", query: "?sort=created_at;DROP%20TABLE%20listings", want: http.StatusBadRequest},
		{name: "異常系_未知のカテゴリ", query: "?category=vehicle", want: http.StatusBadRequest},
		{name: "異常系_アフリカ以外の国", query: "?country=FR", want: http.StatusBadRequest},
		{name: "異常系_不正な日付", query: "?from=yesterday", want: http.StatusBadRequest},
		{name: "異常系_開始日が終了日より後", query: "?from=2026-03-01&to=2026-02-01", want: http.StatusBadRequest},
		{name: "異常系_一般利用者は審査待ちを検索できない", query: "?status=pending", want: http.StatusBadRequest},
		{name: "異常系_per_pageが上限超過", query: "?per_page=1000", want: http.StatusBadRequest},
		{name: "異常系_他人のowner指定", query: "?owner=bob", token: alice, want: http.StatusBadRequest},
		{name: "異常系_未認証でowner=me", query: "?owner=me", want: http.StatusUnauthorized},
	}
	for _, tt := range badRequests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			w := env.doJSON(t, http.MethodGet, "/api/v1/listings"+tt.query, tt.token, nil)
			if w.Code != tt.want {
				t.Errorf("ステータスコード = %d, want %d (body=%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestHandleUpdateListing(t *testing.T) {
	t.Parallel()

	update := map[string]any{
		"title":      "Chien perdu à Cocody (mise à jour)",
		"country":    "CI",
		"city":       "Abidjan",
		"event_date": "2026-02-21",
		"reward":     "50 000 FCFA",
	}

	t.Run("正常系_モデレーション有効時は公開中の投稿が審査待ちに戻る", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)
		if w := env.doJSON(t, http.MethodPost, "/api/v1/admin/listings/"+l.ID+"/approve", tokenFor(t, "mod", middleware.RoleModerator), nil); w.Code != http.StatusOK {
			t.Fatalf("承認に失敗: %d %s", w.Code, w.Body.String())
		}

		w := env.doJSON(t, http.MethodPut, "/api/v1/listings/"+l.ID, owner, update)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		got := decode[listingResponse](t, w)
		if got.Status != "pending" {
			t.Errorf("status = %q, want pending", got.Status)
		}
		if got.Reward != "50 000 FCFA" || got.Category != "animal" {
			t.Errorf("更新内容が反映されていない: %+v", got)
		}
		types := env.notifier.types()
		if types[len(types)-1] != event.TypeListingSubmitted {
			t.Errorf("最後のイベント = %s, want ListingSubmitted", types[len(types)-1])
		}
	})

	t.Run("正常系_モデレーション無効時は公開中のまま", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		w := env.doJSON(t, http.MethodPut, "/api/v1/listings/"+l.ID, owner, update)
		got := decode[listingResponse](t, w)
		if got.Status != "published" {
			t.Errorf("status = %q, want published", got.Status)
		}
	})

	t.Run("異常系_投稿者以外は403を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPut, "/api/v1/listings/"+l.ID, tokenFor(t, "other", middleware.RoleUser), update)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})

	t.Run("異常系_解決済みの投稿は409を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)
		env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", owner, nil)

		w := env.doJSON(t, http.MethodPut, "/api/v1/listings/"+l.ID, owner, update)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})
}

func TestHandleResolveListing(t *testing.T) {
	t.Parallel()

	t.Run("正常系_投稿者が解決済みにできる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", owner, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusOK, w.Body.String())
		}
		got := decode[listingResponse](t, w)
		if got.Status != "resolved" || got.ResolvedAt == nil {
			t.Errorf("status = %q, resolved_at = %v", got.Status, got.ResolvedAt)
		}
		if env.notifier.last(t).EventType != event.TypeListingResolved {
			t.Errorf("イベント = %s, want ListingResolved", env.notifier.last(t).EventType)
		}

		// 2回目は409
		w = env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", owner, nil)
		if w.Code != http.StatusConflict {
			t.Errorf("2回目のステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("正常系_スタッフも解決済みにできる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", tokenFor(t, "admin", middleware.RoleAdmin), nil)
		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
	})

	t.Run("異常系_他の利用者は403を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", tokenFor(t, "other", middleware.RoleUser), nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}

func TestHandleDeleteListing(t *testing.T) {
	t.Parallel()

	t.Run("正常系_投稿者が削除すると以後404になる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		w := env.doJSON(t, http.MethodDelete, "/api/v1/listings/"+l.ID, owner, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if env.notifier.last(t).EventType != event.TypeListingDeleted {
			t.Errorf("イベント = %s, want ListingDeleted", env.notifier.last(t).EventType)
		}
		w = env.doJSON(t, http.MethodGet, "/api/v1/listings/"+l.ID, "", nil)
		if w.Code != http.StatusNotFound {
			t.Errorf("削除後のステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("異常系_他の利用者は403を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodDelete, "/api/v1/listings/"+l.ID, tokenFor(t, "other", middleware.RoleUser), nil)
		if w.Code != http.StatusForbidden {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusForbidden)
		}
	})
}
