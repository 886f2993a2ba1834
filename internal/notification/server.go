package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/httpserver"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// Server は通知サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// queries はnotificationサービスのテーブルへのクエリ実行オブジェクト。
	queries *notificationdb.Queries
	// db はSQLiteデータベース接続。
	db *sqlx.DB
	// renderer はメールテンプレートの描画を行う。
	renderer *Renderer
	// dispatcher はアウトボックスのメールを送信する。
	dispatcher *Dispatcher
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しい通知サーバーを生成する。
// データベースの初期化とメールリレーの準備を行う。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := database.OpenAndMigrate(ctx, cfg.Server().DatabaseDSN, Migrations, MigrationsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	if cfg.Mail.RelayURL == "" {
		logger.Warn("メールリレーが未設定のため、メールはログ出力のみになります")
	}

	s, err := newServer(sqlDB, NewMailer(cfg.Mail, logger), cfg, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// newServer は依存を受け取ってサーバーを組み立てる。
func newServer(sqlDB *sqlx.DB, mailer Mailer, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := validation.Register(); err != nil {
		return nil, fmt.Errorf("バリデーションの登録に失敗: %w", err)
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, fmt.Errorf("メールテンプレートの読み込みに失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	router.Use(otelgin.Middleware(config.ServiceNotification))
	router.Use(middleware.Metrics(config.ServiceNotification))

	queries := notificationdb.New(sqlDB)
	s := &Server{
		router:     router,
		cfg:        cfg,
		queries:    queries,
		db:         sqlDB,
		renderer:   renderer,
		dispatcher: NewDispatcher(queries, mailer, cfg.Mail.From, cfg.Dispatcher, logger),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
	s.setupRoutes()
	return s, nil
}

// Handler はHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run は配信ループとHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	defer s.db.Close()

	s.dispatcher.Start(ctx)
	defer s.dispatcher.Stop()

	return httpserver.Serve(ctx, ":"+s.cfg.Server().Port, s.router, s.logger)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	secret := s.cfg.Auth.JWTSecret

	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(secret))
	{
		notifications := api.Group("/notifications")
		{
			// 通知一覧取得
			notifications.GET("", s.handleList())
			// 未読通知一覧取得
			notifications.GET("/unread", s.handleListUnread())
			// 通知を既読にする
			notifications.PUT("/:id/read", s.handleMarkAsRead())
			// 全通知を既読にする
			notifications.PUT("/read-all", s.handleMarkAllAsRead())
		}

		alerts := api.Group("/alerts")
		{
			alerts.GET("", s.handleListAlerts())
			alerts.POST("", s.handleCreateAlert())
			alerts.DELETE("/:id", s.handleDeleteAlert())
		}
	}

	// 内部API（listingサービスから呼び出される）
	internal := s.router.Group("/api/v1/internal")
	internal.Use(middleware.InternalAuth(s.cfg.Auth.InternalToken))
	{
		// イベントの受信と通知への展開
		internal.POST("/events", s.handleEvent())
		// 通知の直接送信
		internal.POST("/send", s.handleSend())
	}

	// アウトボックスの管理（モデレーター以上）
	admin := s.router.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(secret), middleware.RequireRole(middleware.RoleAdmin, middleware.RoleModerator))
	{
		admin.GET("/outbox", s.handleListOutbox())
		admin.POST("/outbox/:id/retry", s.handleRetryEmail())
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "service": "notification"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "notification"})
	})
}
