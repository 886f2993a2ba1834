package main

import (
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/pkg/database"
)

func newMigrateCmd(opts *options) *cobra.Command {
	var service string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "データベースにマイグレーションを適用する",
		Long: `各サービスのデータベースに未適用のマイグレーションを適用する。
--serviceを省略した場合は全サービスに適用する。--dsnは--serviceと併用する。`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if service == "" && opts.dsn != "" {
				return errors.New("--dsnを指定する場合は--serviceも指定してください")
			}
			services := []string{service}
			if service == "" {
				services = make([]string, 0, len(migrations))
				for name := range migrations {
					services = append(services, name)
				}
				slices.Sort(services)
			} else if err := checkService(service); err != nil {
				return err
			}

			for _, name := range services {
				cfg, logger, err := opts.load(name)
				if err != nil {
					return err
				}
				m := migrations[name]
				db, err := database.OpenAndMigrate(cmd.Context(), cfg.Server().DatabaseDSN, m.fsys, m.dir, logger)
				if err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
				_ = db.Close()
				logger.Info("マイグレーションを適用しました", zap.String("target", name))
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&service, "service", "", "対象サービス（gateway, listing, notification）")
	return cmd
}
