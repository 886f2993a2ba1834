package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/migration"
	"github.com/nao1215/retrouvafrik/pkg/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testJWTSecret はテスト用のJWT署名秘密鍵。
const testJWTSecret = "test-secret-key"

// fakeNotifier は送信されたイベントを記録するNotifier。
type fakeNotifier struct {
	mu     sync.Mutex
	events []*event.Event
	err    error
}

func (f *fakeNotifier) Notify(_ context.Context, ev *event.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, ev)
	return nil
}

// types は記録されたイベントの種類を順に返す。
func (f *fakeNotifier) types() []event.Type {
	f.mu.Lock()
	defer f.mu.Unlock()
	types := make([]event.Type, 0, len(f.events))
	for _, ev := range f.events {
		types = append(types, ev.EventType)
	}
	return types
}

// last は最後に記録されたイベントを返す。
func (f *fakeNotifier) last(t *testing.T) *event.Event {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.events) == 0 {
		t.Fatal("イベントが送信されていない")
	}
	return f.events[len(f.events)-1]
}

// testEnv はテスト用サーバーとその依存。
type testEnv struct {
	server   *Server
	notifier *fakeNotifier
	store    *storage.LocalStore
}

// newTestEnv はインメモリSQLiteとローカルストレージを使うテスト用の投稿サーバーを生成する。
func newTestEnv(t *testing.T, moderation bool) *testEnv {
	t.Helper()

	sqlDB, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	t.Cleanup(func() { sqlDB.Close() })
	if err := migration.Run(context.Background(), sqlDB.DB, Migrations, MigrationsDir, nil); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}

	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("ストレージの作成に失敗: %v", err)
	}

	cfg := config.Default(config.ServiceListing)
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Moderation.Required = moderation

	notifier := &fakeNotifier{}
	s, err := newServer(sqlDB, store, notifier, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newServer()でエラーが発生: %v", err)
	}
	s.now = steppingClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	return &testEnv{server: s, notifier: notifier, store: store}
}

// steppingClock は呼び出すたびに1秒進む時計を返す。作成順の並びを安定させる。
func steppingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

// tokenFor はテスト用のJWTを生成する。
func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := middleware.GenerateJWT(testJWTSecret, userID, userID+"@example.com", role, time.Hour)
	if err != nil {
		t.Fatalf("JWT生成に失敗: %v", err)
	}
	return token
}

// doJSON はJSONボディ付きのリクエストを実行する。
func (e *testEnv) doJSON(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("リクエストボディのシリアライズに失敗: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(w, req)
	return w
}

// decode はレスポンスボディをデコードする。
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("レスポンスのデコードに失敗: %v (body=%s)", err, w.Body.String())
	}
	return v
}

// listingBody は投稿作成リクエストのボディを返す。overridesで項目を上書きできる。
func listingBody(overrides map[string]any) map[string]any {
	body := map[string]any{
		"category":        "animal",
		"kind":            "lost",
		"title":           "Chien perdu à Cocody",
		"description":     "Berger allemand, collier rouge, répond au nom de Rex",
		"country":         "ci",
		"city":            "Abidjan",
		"last_seen_place": "Marché de Cocody",
		"event_date":      "2026-02-20",
		"attributes": map[string]any{
			"species":   "chien",
			"breed":     "berger allemand",
			"full_name": "ignoré",
		},
	}
	for k, v := range overrides {
		body[k] = v
	}
	return body
}

// createListing は投稿を作成してレスポンスを返す。
func (e *testEnv) createListing(t *testing.T, token string, overrides map[string]any) listingResponse {
	t.Helper()
	w := e.doJSON(t, http.MethodPost, "/api/v1/listings", token, listingBody(overrides))
	if w.Code != http.StatusCreated {
		t.Fatalf("投稿の作成に失敗: status=%d body=%s", w.Code, w.Body.String())
	}
	return decode[listingResponse](t, w)
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	t.Run("正常系_ヘルスチェックが成功する", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, true)
		w := env.doJSON(t, http.MethodGet, "/health", "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		resp := decode[map[string]string](t, w)
		if resp["service"] != "listing" {
			t.Errorf("service = %q, want %q", resp["service"], "listing")
		}
	})
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, false)
	env.createListing(t, tokenFor(t, "owner-metrics", middleware.RoleUser), nil)

	w := env.doJSON(t, http.MethodGet, "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("retrouvafrik_listing_created_total")) {
		t.Error("投稿作成数のメトリクスが含まれていない")
	}
}
