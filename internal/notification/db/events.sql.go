package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ProcessedEvent は受信済みイベントの記録。
type ProcessedEvent struct {
	ID          string    `db:"id"`
	EventType   string    `db:"event_type"`
	AggregateID string    `db:"aggregate_id"`
	Recipients  int64     `db:"recipients"`
	ReceivedAt  time.Time `db:"received_at"`
}

// RecordEventParams はRecordEventの引数。
type RecordEventParams struct {
	ID          string
	EventType   string
	AggregateID string
	Recipients  int
	ReceivedAt  time.Time
}

const recordEvent = `
INSERT INTO processed_events (id, event_type, aggregate_id, recipients, received_at)
VALUES (?, ?, ?, ?, ?)
`

// RecordEvent はイベントを受信済みとして記録する。同じIDは主キー違反になる。
func (q *Queries) RecordEvent(ctx context.Context, arg RecordEventParams) error {
	_, err := q.db.ExecContext(ctx, recordEvent,
		arg.ID, arg.EventType, arg.AggregateID, arg.Recipients, arg.ReceivedAt,
	)
	return err
}

const getProcessedEvent = `
SELECT id, event_type, aggregate_id, recipients, received_at
FROM processed_events WHERE id = ?
`

// GetProcessedEvent はIDで受信済みイベントを取得する。
func (q *Queries) GetProcessedEvent(ctx context.Context, id string) (ProcessedEvent, error) {
	var e ProcessedEvent
	err := sqlx.GetContext(ctx, q.db, &e, getProcessedEvent, id)
	return e, err
}
