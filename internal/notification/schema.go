package notification

import "embed"

// Migrations はnotificationサービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir はMigrations内のマイグレーションファイルのディレクトリ。
const MigrationsDir = "migrations"
