package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/internal/gateway"
	gatewaydb "github.com/nao1215/retrouvafrik/internal/gateway/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

func newPromoteCmd(opts *options) *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "promote EMAIL",
		Short: "登録済みユーザーのロールを変更する",
		Long: `メールアドレスで指定したユーザーのロールを変更する。
最初の管理者はAPIから任命できないため、このコマンドで作成する。`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !middleware.ValidRole(role) {
				return fmt.Errorf("不正なロールです: %s", role)
			}
			email := strings.ToLower(strings.TrimSpace(args[0]))

			cfg, logger, err := opts.load(config.ServiceGateway)
			if err != nil {
				return err
			}
			db, err := database.OpenAndMigrate(cmd.Context(), cfg.Server().DatabaseDSN, gateway.Migrations, gateway.MigrationsDir, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			n, err := gatewaydb.New(db).UpdateUserRoleByEmail(cmd.Context(), email, role)
			if err != nil {
				return fmt.Errorf("ロールの変更に失敗: %w", err)
			}
			if n == 0 {
				return errors.New("ユーザーが見つかりません: " + email)
			}
			logger.Info("ロールを変更しました", zap.String("email", email), zap.String("role", role))
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", email, role)
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", middleware.RoleAdmin, "付与するロール（user, moderator, admin）")
	return cmd
}
