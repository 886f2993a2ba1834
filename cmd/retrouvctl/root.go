package main

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/internal/gateway"
	"github.com/nao1215/retrouvafrik/internal/listing"
	"github.com/nao1215/retrouvafrik/internal/notification"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/logging"
)

// options は全サブコマンド共通のフラグ。
type options struct {
	configPath string
	dsn        string
	logLevel   string
}

// migrations はサービスごとの埋め込みマイグレーション。
var migrations = map[string]struct {
	fsys fs.FS
	dir  string
}{
	config.ServiceGateway:      {gateway.Migrations, gateway.MigrationsDir},
	config.ServiceListing:      {listing.Migrations, listing.MigrationsDir},
	config.ServiceNotification: {notification.Migrations, notification.MigrationsDir},
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	cmd := &cobra.Command{
		Use:          "retrouvctl",
		Short:        "RetrouvAfrikの運用コマンド",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("RETROUVAFRIK_CONFIG"), "設定ファイル（YAML）のパス")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "データベースのDSN。設定ファイルの値を上書きする")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "ログレベル（debug, info, warn, error）")

	cmd.AddCommand(
		newMigrateCmd(opts),
		newPromoteCmd(opts),
		newDispatchCmd(opts),
		newPurgeCmd(opts),
	)
	return cmd
}

// load は指定サービスの設定とロガーを用意する。
func (o *options) load(service string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFile(service, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	if o.dsn != "" {
		server := cfg.Servers[service]
		server.DatabaseDSN = o.dsn
		cfg.Servers[service] = server
	}
	level := cfg.LogLevel
	if o.logLevel != "" {
		level = o.logLevel
	}
	logger, err := logging.New("retrouvctl", level)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func checkService(service string) error {
	if _, ok := migrations[service]; !ok {
		return fmt.Errorf("未知のサービス名です: %s", service)
	}
	return nil
}
