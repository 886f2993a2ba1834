package db

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

const emailColumns = `id, recipient, reply_to, subject, html_body, text_body, kind, reference_id,
status, attempts, last_error, next_attempt_at, locked_at, sent_at, created_at`

// EnqueueEmailParams はEnqueueEmailの引数。
type EnqueueEmailParams struct {
	ID          string
	Recipient   string
	ReplyTo     string
	Subject     string
	HTMLBody    string
	TextBody    string
	Kind        string
	ReferenceID string
	CreatedAt   time.Time
}

const enqueueEmail = `
INSERT INTO emails (
    id, recipient, reply_to, subject, html_body, text_body, kind, reference_id,
    status, attempts, next_attempt_at, created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'pending', 0, ?, ?)
`

// EnqueueEmail はメールをアウトボックスに追加する。作成時刻から送信対象になる。
func (q *Queries) EnqueueEmail(ctx context.Context, arg EnqueueEmailParams) error {
	_, err := q.db.ExecContext(ctx, enqueueEmail,
		arg.ID, arg.Recipient, arg.ReplyTo, arg.Subject, arg.HTMLBody, arg.TextBody,
		arg.Kind, arg.ReferenceID, arg.CreatedAt, arg.CreatedAt,
	)
	return err
}

const getEmail = `SELECT ` + emailColumns + ` FROM emails WHERE id = ?`

// GetEmail はIDでメールを取得する。
func (q *Queries) GetEmail(ctx context.Context, id string) (Email, error) {
	var e Email
	err := sqlx.GetContext(ctx, q.db, &e, getEmail, id)
	return e, err
}

// ListEmailsParams はListEmailsの引数。Statusが空の場合は全件。
type ListEmailsParams struct {
	Status string
	Limit  uint64
	Offset uint64
}

func (arg ListEmailsParams) where() sq.And {
	cond := sq.And{}
	if arg.Status != "" {
		cond = append(cond, sq.Eq{"status": arg.Status})
	}
	return cond
}

// ListEmails はアウトボックスのメールを新しい順に返す。
func (q *Queries) ListEmails(ctx context.Context, arg ListEmailsParams) ([]Email, error) {
	b := sq.Select(emailColumns).From("emails").Where(arg.where()).OrderBy("created_at DESC", "id DESC")
	if arg.Limit > 0 {
		b = b.Limit(arg.Limit).Offset(arg.Offset)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	emails := []Email{}
	err = sqlx.SelectContext(ctx, q.db, &emails, query, args...)
	return emails, err
}

// CountEmails はListEmailsと同じ条件の件数を返す。
func (q *Queries) CountEmails(ctx context.Context, arg ListEmailsParams) (int64, error) {
	query, args, err := sq.Select("COUNT(*)").From("emails").Where(arg.where()).ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	err = sqlx.GetContext(ctx, q.db, &n, query, args...)
	return n, err
}

const claimDueEmails = `
UPDATE emails
SET status = 'sending', locked_at = ?
WHERE id IN (
    SELECT id FROM emails
    WHERE (status = 'pending' AND next_attempt_at <= ?)
       OR (status = 'sending' AND locked_at <= ?)
    ORDER BY next_attempt_at, created_at, id
    LIMIT ?
)
RETURNING ` + emailColumns

// ClaimDueEmails は送信期限を迎えたメールと、リースが切れた送信中のメールを
// 最大limit件sendingにして返す。
func (q *Queries) ClaimDueEmails(ctx context.Context, now, leaseExpiredBefore time.Time, limit int) ([]Email, error) {
	emails := []Email{}
	err := sqlx.SelectContext(ctx, q.db, &emails, claimDueEmails, now, now, leaseExpiredBefore, limit)
	return emails, err
}

const markEmailSent = `
UPDATE emails
SET status = 'sent', sent_at = ?, attempts = attempts + 1, last_error = '', locked_at = NULL
WHERE id = ? AND status = 'sending'
`

// MarkEmailSent はメールを送信済みにする。
func (q *Queries) MarkEmailSent(ctx context.Context, id string, at time.Time) error {
	_, err := q.db.ExecContext(ctx, markEmailSent, at, id)
	return err
}

const markEmailRetry = `
UPDATE emails
SET status = 'pending', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL
WHERE id = ? AND status = 'sending'
`

// MarkEmailRetry は送信失敗を記録し、nextAttemptAtに再送する。
func (q *Queries) MarkEmailRetry(ctx context.Context, id, lastError string, nextAttemptAt time.Time) error {
	_, err := q.db.ExecContext(ctx, markEmailRetry, lastError, nextAttemptAt, id)
	return err
}

const markEmailFailed = `
UPDATE emails
SET status = 'failed', attempts = attempts + 1, last_error = ?, locked_at = NULL
WHERE id = ? AND status = 'sending'
`

// MarkEmailFailed は送信失敗を記録し、再送しない状態にする。
func (q *Queries) MarkEmailFailed(ctx context.Context, id, lastError string) error {
	_, err := q.db.ExecContext(ctx, markEmailFailed, lastError, id)
	return err
}

const retryEmail = `
UPDATE emails
SET status = 'pending', attempts = 0, next_attempt_at = ?, locked_at = NULL
WHERE id = ? AND status = 'failed'
`

// RetryEmail は失敗したメールを再送対象に戻し、更新件数を返す。
func (q *Queries) RetryEmail(ctx context.Context, id string, at time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, retryEmail, at, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

const countBacklog = `SELECT COUNT(*) FROM emails WHERE status IN ('pending', 'sending')`

// CountBacklog は未送信のメール数を返す。
func (q *Queries) CountBacklog(ctx context.Context) (int64, error) {
	var n int64
	err := sqlx.GetContext(ctx, q.db, &n, countBacklog)
	return n, err
}

const deleteSentEmailsBefore = `DELETE FROM emails WHERE status = 'sent' AND sent_at < ?`

// DeleteSentEmailsBefore は指定時刻より前に送信済みになったメールを削除し、削除件数を返す。
func (q *Queries) DeleteSentEmailsBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, deleteSentEmailsBefore, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
