package gateway

import "embed"

// Migrations はgatewayサービスのマイグレーションファイル。
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir はMigrations内のディレクトリ名。
const MigrationsDir = "migrations"
