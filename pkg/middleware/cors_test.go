package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestCORS(t *testing.T) {
	t.Parallel()

	origins := []string{"http://localhost:3000", "https://retrouvafrik.org/", ""}

	tests := []struct {
		name        string
		method      string
		origin      string
		wantStatus  int
		wantAllow   string
		wantHandled bool
	}{
		{name: "正常系_許可されたオリジン", method: http.MethodGet, origin: "http://localhost:3000", wantStatus: http.StatusOK, wantAllow: "http://localhost:3000", wantHandled: true},
		{name: "正常系_末尾スラッシュ付きで設定したオリジン", method: http.MethodGet, origin: "https://retrouvafrik.org", wantStatus: http.StatusOK, wantAllow: "https://retrouvafrik.org", wantHandled: true},
		{name: "正常系_許可されていないオリジンにはヘッダーを付けない", method: http.MethodGet, origin: "https://evil.example", wantStatus: http.StatusOK, wantHandled: true},
		{name: "正常系_Origin無し", method: http.MethodGet, wantStatus: http.StatusOK, wantHandled: true},
		{name: "正常系_プリフライトは204でハンドラを呼ばない", method: http.MethodOptions, origin: "http://localhost:3000", wantStatus: http.StatusNoContent, wantAllow: "http://localhost:3000"},
		{name: "正常系_許可されていないオリジンのプリフライト", method: http.MethodOptions, origin: "https://evil.example", wantStatus: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			handled := false
			router := gin.New()
			router.Use(CORS(origins))
			router.Any("/api/v1/listings", func(c *gin.Context) {
				handled = true
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(tt.method, "/api/v1/listings", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("ステータスコード = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if tt.wantAllow != "" && w.Header().Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("Access-Control-Allow-Credentialsが設定されていない")
			}
			if got := w.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
			if handled != tt.wantHandled {
				t.Errorf("ハンドラの実行 = %v, want %v", handled, tt.wantHandled)
			}
		})
	}
}
