package listing

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/httpserver"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/storage"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// Server は投稿サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はサービス設定。
	cfg *config.Config
	// queries はlistingサービスのテーブルへのクエリ実行オブジェクト。
	queries *listingdb.Queries
	// db はSQLiteデータベース接続。トランザクションの開始に使う。
	db *sqlx.DB
	// store は写真の保存先。
	store storage.Store
	// notifier はnotificationサービスへのイベント送信先。
	notifier Notifier
	// logger は構造化ロガー。
	logger *zap.Logger
	// now は現在時刻を返す。
	now func() time.Time
}

// NewServer は新しい投稿サーバーを生成する。
// データベースの初期化と写真ストレージの準備を行う。
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	sqlDB, err := database.OpenAndMigrate(ctx, cfg.Server().DatabaseDSN, Migrations, MigrationsDir, logger)
	if err != nil {
		return nil, fmt.Errorf("データベースの初期化に失敗: %w", err)
	}
	store, err := storage.FromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ストレージ初期化に失敗: %w", err)
	}
	notifier := NewHTTPNotifier(cfg.Services.Notification, cfg.Auth.InternalToken)

	s, err := newServer(sqlDB, store, notifier, cfg, logger)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return s, nil
}

// newServer は依存を受け取ってサーバーを組み立てる。
func newServer(sqlDB *sqlx.DB, store storage.Store, notifier Notifier, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if err := validation.Register(); err != nil {
		return nil, fmt.Errorf("バリデーションの登録に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(gin.Logger())
	router.Use(otelgin.Middleware(config.ServiceListing))
	router.Use(middleware.Metrics(config.ServiceListing))

	// マルチパートフォームはメモリに保持する上限を超えると一時ファイルに書き出される。
	router.MaxMultipartMemory = maxPhotoSize

	s := &Server{
		router:   router,
		cfg:      cfg,
		queries:  listingdb.New(sqlDB),
		db:       sqlDB,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
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
	secret := s.cfg.Auth.JWTSecret

	// 公開API（トークンがあれば所有者・スタッフとして扱う）
	public := s.router.Group("/api/v1")
	public.Use(middleware.OptionalJWTAuth(secret))
	{
		// 検索
		public.GET("/listings", s.handleSearchListings())
		// 投稿の詳細
		public.GET("/listings/:id", s.handleGetListing())
		// 投稿者への連絡
		public.POST("/listings/:id/contact", s.handleContact())
		// 写真の配信
		public.GET("/photos/*key", s.handleServePhoto())
	}

	// 認証必須のAPI
	api := s.router.Group("/api/v1")
	api.Use(middleware.JWTAuth(secret))
	{
		listings := api.Group("/listings")
		{
			// 投稿の作成
			listings.POST("", s.handleCreateListing())
			// 投稿の編集
			listings.PUT("/:id", s.handleUpdateListing())
			// 投稿の削除
			listings.DELETE("/:id", s.handleDeleteListing())
			// 解決済みにする
			listings.POST("/:id/resolve", s.handleResolveListing())
			// 写真のアップロード
			listings.POST("/:id/photos", s.handleUploadPhoto())
			// 写真の削除
			listings.DELETE("/:id/photos/:photo_id", s.handleDeletePhoto())
			// 通報
			listings.POST("/:id/reports", s.handleCreateReport())
		}
	}

	// モデレーション（モデレーター以上）
	admin := s.router.Group("/api/v1/admin")
	admin.Use(middleware.JWTAuth(secret), middleware.RequireRole(middleware.RoleAdmin, middleware.RoleModerator))
	{
		admin.GET("/listings", s.handleAdminListListings())
		admin.POST("/listings/:id/approve", s.handleApproveListing())
		admin.POST("/listings/:id/reject", s.handleRejectListing())
		admin.GET("/reports", s.handleListReports())
		admin.POST("/reports/:id/dismiss", s.handleDismissReport())
		admin.POST("/reports/:id/action", s.handleActionReport())
		admin.GET("/stats", s.handleStats())
	}

	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		if err := s.db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "service": "listing"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "listing"})
	})
}
