package db

import (
	"database/sql"
	"time"
)

// メールの送信状態。
const (
	EmailPending = "pending"
	EmailSending = "sending"
	EmailSent    = "sent"
	EmailFailed  = "failed"
)

// Notification はアプリ内通知。
type Notification struct {
	ID          string    `db:"id"`
	UserID      string    `db:"user_id"`
	Kind        string    `db:"kind"`
	ReferenceID string    `db:"reference_id"`
	Title       string    `db:"title"`
	Message     string    `db:"message"`
	Link        string    `db:"link"`
	IsRead      int64     `db:"is_read"`
	CreatedAt   time.Time `db:"created_at"`
}

// Alert は新着投稿の通知条件。空のフィールドはすべてに一致する。
type Alert struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Email     string    `db:"email"`
	Category  string    `db:"category"`
	Kind      string    `db:"kind"`
	Country   string    `db:"country"`
	City      string    `db:"city"`
	CreatedAt time.Time `db:"created_at"`
}

// Email はアウトボックスのメール。
type Email struct {
	ID            string       `db:"id"`
	Recipient     string       `db:"recipient"`
	ReplyTo       string       `db:"reply_to"`
	Subject       string       `db:"subject"`
	HTMLBody      string       `db:"html_body"`
	TextBody      string       `db:"text_body"`
	Kind          string       `db:"kind"`
	ReferenceID   string       `db:"reference_id"`
	Status        string       `db:"status"`
	Attempts      int64        `db:"attempts"`
	LastError     string       `db:"last_error"`
	NextAttemptAt time.Time    `db:"next_attempt_at"`
	LockedAt      sql.NullTime `db:"locked_at"`
	SentAt        sql.NullTime `db:"sent_at"`
	CreatedAt     time.Time    `db:"created_at"`
}
