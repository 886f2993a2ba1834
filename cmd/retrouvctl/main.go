// retrouvctlはRetrouvAfrikの運用コマンド。
// マイグレーションの適用、管理者の任命、アウトボックスの手動配信と古いデータの削除を行う。
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}
