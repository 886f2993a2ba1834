// 投稿サービスのエントリポイント。
// 行方不明者・迷子の動物・落とし物の投稿、写真、通報、モデレーションを担当する。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/internal/listing"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/logging"
	"github.com/nao1215/retrouvafrik/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(config.ServiceListing)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger, err := logging.New(config.ServiceListing, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, config.ServiceListing, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("トレーサーの初期化に失敗", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("トレーサーの終了に失敗", zap.Error(err))
		}
	}()

	server, err := listing.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("投稿サーバーの初期化に失敗", zap.Error(err))
	}

	logger.Info("投稿サービスを起動します", zap.String("port", cfg.Server().Port))
	if err := server.Run(ctx); err != nil {
		logger.Error("投稿サービスが異常終了しました", zap.Error(err))
		stop()
		os.Exit(1)
	}
	logger.Info("投稿サービスを停止しました")
}
