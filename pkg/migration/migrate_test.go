package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDBの作成に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCollect(t *testing.T) {
	t.Parallel()

	t.Run("up.sqlのみをバージョン順に収集すること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"migrations/000002_add_index.up.sql":      {Data: []byte("SELECT 1;")},
			"migrations/000001_create_users.up.sql":   {Data: []byte("SELECT 1;")},
			"migrations/000001_create_users.down.sql": {Data: []byte("SELECT 1;")},
			"migrations/README.md":                    {Data: []byte("doc")},
			"migrations/abc_invalid.up.sql":           {Data: []byte("SELECT 1;")},
		}

		files, err := Collect(fsys, "migrations")
		if err != nil {
			t.Fatalf("Collect()でエラーが発生: %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("ファイル数 = %d, want 2", len(files))
		}
		if files[0].Version != 1 || files[0].Name != "create_users" {
			t.Errorf("files[0] = %+v", files[0])
		}
		if files[1].Path != "migrations/000002_add_index.up.sql" {
			t.Errorf("files[1].Path = %q", files[1].Path)
		}
	})

	t.Run("バージョンが重複している場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		fsys := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("SELECT 1;")},
			"m/000001_b.up.sql": {Data: []byte("SELECT 1;")},
		}
		if _, err := Collect(fsys, "m"); err == nil {
			t.Fatal("重複バージョンでエラーになるべき")
		}
	})
}

func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/000001_create_items.up.sql": {Data: []byte(`
			CREATE TABLE items (id TEXT PRIMARY KEY);
			CREATE INDEX idx_items_id ON items(id);
		`)},
		"m/000002_add_name.up.sql": {Data: []byte("ALTER TABLE items ADD COLUMN name TEXT NOT NULL DEFAULT '';")},
	}

	t.Run("未適用のマイグレーションを適用し再実行では何もしないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()

		if err := Run(ctx, db, fsys, "m", nil); err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if err := Run(ctx, db, fsys, "m", nil); err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 2 {
			t.Errorf("適用済みバージョン数 = %d, want 2", count)
		}
		if _, err := db.Exec("INSERT INTO items (id, name) VALUES ('1', 'x')"); err != nil {
			t.Errorf("マイグレーション後のテーブルに挿入できない: %v", err)
		}
	})

	t.Run("SQLが失敗した場合はバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABLE ;")},
		}
		if err := Run(context.Background(), db, broken, "m", nil); err == nil {
			t.Fatal("不正なSQLでエラーになるべき")
		}

		var count int
		if err := db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("schema_migrationsの取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("適用済みバージョン数 = %d, want 0", count)
		}
	})
}
