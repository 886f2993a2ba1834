package main

import (
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/internal/notification"
	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
)

// openDispatcher は通知サービスのデータベースに接続し、Dispatcherを生成する。
func (o *options) openDispatcher(cmd *cobra.Command) (*notification.Dispatcher, *sqlx.DB, *zap.Logger, error) {
	cfg, logger, err := o.load(config.ServiceNotification)
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := database.OpenAndMigrate(cmd.Context(), cfg.Server().DatabaseDSN, notification.Migrations, notification.MigrationsDir, logger)
	if err != nil {
		return nil, nil, nil, err
	}
	mailer := notification.NewMailer(cfg.Mail, logger)
	d := notification.NewDispatcher(notificationdb.New(db), mailer, cfg.Mail.From, cfg.Dispatcher, logger)
	return d, db, logger, nil
}

func newDispatchCmd(opts *options) *cobra.Command {
	var maxBatches int
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "送信期限を迎えたメールを今すぐ配信する",
		Long: `アウトボックスから送信期限を迎えたメールを取り出し、取り出せるメールが無くなるまで配信する。
通知サービスが停止している間の手動配信に使う。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, db, logger, err := opts.openDispatcher(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			start := time.Now()
			var total notification.Result
			for i := 0; maxBatches <= 0 || i < maxBatches; i++ {
				res, err := d.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				total.Claimed += res.Claimed
				total.Sent += res.Sent
				total.Retried += res.Retried
				total.Failed += res.Failed
				total.Skipped += res.Skipped
				if res.Claimed == 0 || cmd.Context().Err() != nil {
					break
				}
			}
			logger.Info("手動配信が完了しました", zap.Duration("elapsed", time.Since(start)))
			fmt.Fprintf(cmd.OutOrStdout(), "sent=%d retried=%d failed=%d skipped=%d\n",
				total.Sent, total.Retried, total.Failed, total.Skipped)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBatches, "max-batches", 0, "処理するバッチ数の上限（0は無制限）")
	return cmd
}

func newPurgeCmd(opts *options) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "保持期間を過ぎた送信済みメールと既読通知を削除する",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-thanは正の値が必要です: %v", olderThan)
			}
			d, db, _, err := opts.openDispatcher(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			emails, notifications, err := d.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "emails=%d notifications=%d\n", emails, notifications)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "保持期間")
	return cmd
}
