package listing

import "embed"

// Migrations はlistingサービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir はMigrations内のディレクトリ名。
const MigrationsDir = "migrations"
