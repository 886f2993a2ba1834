// Package database はSQLiteへの接続を提供する。
package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/retrouvafrik/pkg/migration"
)

// driverName はmodernc.org/sqliteのドライバ名。
const driverName = "sqlite"

// defaultParams はDSNに付与するSQLiteのプラグマ。
// 時刻は _time_format=sqlite により "YYYY-MM-DD HH:MM:SS.fff+00:00" 形式で書き込まれ、
// UTCで揃えている限り文字列比較で大小判定できる。
var defaultParams = []string{
	"_pragma=foreign_keys(1)",
	"_pragma=busy_timeout(5000)",
	"_pragma=journal_mode(WAL)",
	"_time_format=sqlite",
}

// WithDefaults はDSNに未指定のデフォルトパラメータを付与する。
func WithDefaults(dsn string) string {
	var missing []string
	for _, p := range defaultParams {
		key := p[:strings.Index(p, "=")+1]
		if strings.HasPrefix(p, "_pragma=") {
			key = p[:strings.Index(p, "(")]
		}
		if !strings.Contains(dsn, key) {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(missing, "&")
}

// Open はSQLiteに接続する。
// SQLiteは書き込みが単一接続に直列化されるため、接続数を1に制限する。
// ":memory:" の場合も同じ接続を使い続けるのでテストでそのまま利用できる。
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, WithDefaults(dsn))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}
	return db, nil
}

// OpenAndMigrate はSQLiteに接続し、埋め込みマイグレーションを適用する。
func OpenAndMigrate(ctx context.Context, dsn string, fsys fs.FS, dir string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	if err := migration.Run(ctx, db.DB, fsys, dir, logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("マイグレーションに失敗: %w", err)
	}
	return db, nil
}

// IsUniqueViolation はerrがUNIQUE制約またはPRIMARY KEY制約の違反かどうかを返す。
func IsUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}
