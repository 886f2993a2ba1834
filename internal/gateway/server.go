package gateway

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	gatewaydb "github.com/nao1215/retrouvafrik/internal/gateway/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/httpserver"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// proxyTimeout は内部サービスへの転送のタイムアウト。写真のアップロードを含む。
const proxyTimeout = 60 * time.Second

// Server はAPI GatewayサービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *gatewaydb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// logger は構造化ロガー。
	logger *zap.Logger
	// proxyClient は内部サービスへの転送に使うHTTPクライアント。
	proxyClient *http.Client
	// bcryptCost はパスワードハッシュのコスト。
	bcryptCost int
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しいGatewayサーバーを生成する。
// データベースへの接続とマイグレーションの適用を行う。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := database.OpenAndMigrate(ctx, cfg.Server().DatabaseDSN, Migrations, MigrationsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	s, err := newServer(sqlDB, cfg, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// newServer は接続済みのデータベースからサーバーを組み立てる。
func newServer(sqlDB *sqlx.DB, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := validation.Register(); err != nil {
		return nil, fmt.Errorf("バリデーションの登録に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	router.Use(otelgin.Middleware(config.ServiceGateway))
	router.Use(middleware.Metrics(config.ServiceGateway))
	router.Use(middleware.CORS([]string{cfg.FrontendURL}))

	s := &Server{
		router:  router,
		cfg:     cfg,
		queries: gatewaydb.New(sqlDB),
		db:      sqlDB,
		logger:  logger,
		proxyClient: &http.Client{
			Timeout:   proxyTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		bcryptCost: bcrypt.DefaultCost,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()
	return httpserver.Serve(ctx, ":"+s.cfg.Server().Port, s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	listingURL := s.cfg.Services.Listing
	notificationURL := s.cfg.Services.Notification
	jwtAuth := middleware.JWTAuth(s.cfg.Auth.JWTSecret)
	currentRole := s.requireCurrentStaffRole()

	// アカウント（認証不要）
	auth := s.router.Group("/auth")
	{
		auth.POST("/register", s.handleRegister())
		auth.POST("/login", s.handleLogin())
		if s.cfg.Auth.DevTokens {
			// 開発用トークン発行
			auth.POST("/dev-token", s.handleDevToken())
		}
	}

	// 公開API。ログイン済みであれば所有者向けの表示になるためトークンは任意。
	public := s.router.Group("/api/v1")
	public.Use(middleware.OptionalJWTAuth(s.cfg.Auth.JWTSecret), currentRole)
	{
		public.GET("/listings", s.proxyTo(listingURL))
		public.GET("/listings/:id", s.proxyTo(listingURL))
		public.POST("/listings/:id/contact", s.proxyTo(listingURL))
		// 写真はimg要素から直接参照されるため認証不要
		public.GET("/photos/*key", s.proxyTo(listingURL))
	}

	// 認証必須のAPI
	api := s.router.Group("/api/v1")
	api.Use(jwtAuth, currentRole)
	{
		api.GET("/me", s.handleGetCurrentUser())
		api.PUT("/me", s.handleUpdateCurrentUser())

		// 投稿
		api.POST("/listings", s.proxyTo(listingURL))
		api.PUT("/listings/:id", s.proxyTo(listingURL))
		api.DELETE("/listings/:id", s.proxyTo(listingURL))
		api.POST("/listings/:id/resolve", s.proxyTo(listingURL))
		api.POST("/listings/:id/photos", s.proxyTo(listingURL))
		api.DELETE("/listings/:id/photos/:photo_id", s.proxyTo(listingURL))
		api.POST("/listings/:id/reports", s.proxyTo(listingURL))

		// 通知
		api.GET("/notifications", s.proxyTo(notificationURL))
		api.GET("/notifications/unread", s.proxyTo(notificationURL))
		api.PUT("/notifications/read-all", s.proxyTo(notificationURL))
		api.PUT("/notifications/:id/read", s.proxyTo(notificationURL))

		// アラート
		api.GET("/alerts", s.proxyTo(notificationURL))
		api.POST("/alerts", s.proxyTo(notificationURL))
		api.DELETE("/alerts/:id", s.proxyTo(notificationURL))
	}

	// 管理画面API（モデレーター以上）
	admin := s.router.Group("/api/v1/admin")
	admin.Use(jwtAuth, currentRole, middleware.RequireRole(middleware.RoleAdmin, middleware.RoleModerator))
	{
		admin.GET("/listings", s.proxyTo(listingURL))
		admin.POST("/listings/:id/approve", s.proxyTo(listingURL))
		admin.POST("/listings/:id/reject", s.proxyTo(listingURL))
		admin.GET("/reports", s.proxyTo(listingURL))
		admin.POST("/reports/:id/dismiss", s.proxyTo(listingURL))
		admin.POST("/reports/:id/action", s.proxyTo(listingURL))
		admin.GET("/stats", s.proxyTo(listingURL))

		admin.GET("/outbox", s.proxyTo(notificationURL))
		admin.POST("/outbox/:id/retry", s.proxyTo(notificationURL))

		// ユーザー管理（管理者のみ）
		users := admin.Group("/users")
		users.Use(middleware.RequireRole(middleware.RoleAdmin))
		{
			users.GET("", s.handleListUsers())
			users.PUT("/:id/role", s.handleChangeRole())
		}
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "service": "gateway"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})
}
