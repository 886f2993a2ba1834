// API Gatewayサービスのエントリポイント。
// アカウント管理とJWT発行を行い、投稿APIと通知APIを内部サービスに転送する。
// 外部からアクセス可能な唯一のサービス。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/internal/gateway"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/logging"
	"github.com/nao1215/retrouvafrik/pkg/telemetry"
)

func main() {
	cfg, err := config.Load(config.ServiceGateway)
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}
	logger, err := logging.New(config.ServiceGateway, cfg.LogLevel)
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, config.ServiceGateway, cfg.OTelEndpoint)
	if err != nil {
		logger.Fatal("トレーサーの初期化に失敗", zap.Error(err))
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("トレーサーの終了に失敗", zap.Error(err))
		}
	}()

	server, err := gateway.NewServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}

	logger.Info("Gatewayサービスを起動します", zap.String("port", cfg.Server().Port))
	if err := server.Run(ctx); err != nil {
		logger.Error("Gatewayサービスが異常終了しました", zap.Error(err))
		stop()
		os.Exit(1)
	}
	logger.Info("Gatewayサービスを停止しました")
}
