package db

import (
	"database/sql"
	"time"
)

// User はusersテーブルの1行。
type User struct {
	ID           string       `db:"id"`
	Email        string       `db:"email"`
	PasswordHash string       `db:"password_hash"`
	DisplayName  string       `db:"display_name"`
	Phone        string       `db:"phone"`
	Country      string       `db:"country"`
	Role         string       `db:"role"`
	CreatedAt    time.Time    `db:"created_at"`
	LastLoginAt  sql.NullTime `db:"last_login_at"`
}
