package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidEvent はイベントの必須項目が欠けている場合に返される。
var ErrInvalidEvent = errors.New("イベントの必須項目が不足しています")

// New は新しいイベントを生成する。
// dataは投稿イベントならListingDataのようなペイロード構造体で、JSONにシリアライズされる。
func New(aggregateID string, aggregateType AggregateType, eventType Type, version int64, data any) (*Event, error) {
	if aggregateID == "" || eventType == "" {
		return nil, ErrInvalidEvent
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("イベントデータのシリアライズに失敗: %w", err)
	}

	return &Event{
		ID:            uuid.New().String(),
		AggregateID:   aggregateID,
		AggregateType: aggregateType,
		EventType:     eventType,
		Data:          jsonData,
		Version:       version,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Validate は受信したイベントが冪等に処理できるだけの項目を持つか検証する。
// IDは重複排除のキーになるため必須。
func (e *Event) Validate() error {
	var missing []string
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.EventType == "" {
		missing = append(missing, "event_type")
	}
	if e.AggregateID == "" {
		missing = append(missing, "aggregate_id")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, missing)
	}
	return nil
}

// DecodeData はイベントのDataフィールドを指定された型にデシリアライズする。
// Dataが空の場合もエラーを返す。
func DecodeData[T any](e *Event) (*T, error) {
	if len(e.Data) == 0 || string(e.Data) == "null" {
		return nil, fmt.Errorf("イベントデータが空です: %s", e.EventType)
	}
	var data T
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("イベントデータのデシリアライズに失敗: %w", err)
	}
	return &data, nil
}
