package gateway

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

// forwardedRequestHeaders は内部サービスへそのまま転送するリクエストヘッダー。
var forwardedRequestHeaders = []string{
	"Authorization",
	"Content-Type",
	"Accept",
}

// forwardedResponseHeaders はクライアントへそのまま返すレスポンスヘッダー。
var forwardedResponseHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Cache-Control",
	"ETag",
	"Last-Modified",
}

// proxyTo はリクエストを同じパスのまま指定サービスへ転送するハンドラを返す。
// gatewayと内部サービスのパス構成は一致している。
func (s *Server) proxyTo(baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		target := baseURL + c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			target += "?" + c.Request.URL.RawQuery
		}
		s.doProxy(c, target)
	}
}

// doProxy はリクエストを内部サービスにプロキシする共通処理。
// JWTトークンと認証済みユーザーの情報をヘッダーで転送し、レスポンスはストリーミングで返す。
func (s *Server) doProxy(c *gin.Context, target string) {
	var body io.Reader = c.Request.Body
	if c.Request.ContentLength == 0 {
		body = http.NoBody
	}
	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, target, body)
	if err != nil {
		s.logger.Error("プロキシリクエストの作成に失敗", zap.String("url", target), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "erreur interne du serveur"})
		return
	}
	req.ContentLength = c.Request.ContentLength

	for _, h := range forwardedRequestHeaders {
		if v := c.GetHeader(h); v != "" {
			req.Header.Set(h, v)
		}
	}
	if userID := middleware.GetUserID(c); userID != "" {
		req.Header.Set(middleware.HeaderUserID, userID)
		req.Header.Set(middleware.HeaderUserEmail, middleware.GetEmail(c))
		req.Header.Set(middleware.HeaderUserRole, middleware.GetRole(c))
	}
	req.Header.Set("X-Forwarded-For", c.ClientIP())

	resp, err := s.proxyClient.Do(req)
	if err != nil {
		s.logger.Error("プロキシエラー", zap.String("url", target), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "service indisponible"})
		return
	}
	defer resp.Body.Close()

	for _, h := range forwardedResponseHeaders {
		if v := resp.Header.Get(h); v != "" {
			c.Header(h, v)
		}
	}
	c.Status(resp.StatusCode)
	if _, err := io.Copy(c.Writer, resp.Body); err != nil {
		s.logger.Warn("レスポンスの転送が中断されました", zap.String("url", target), zap.Error(err))
	}
}
