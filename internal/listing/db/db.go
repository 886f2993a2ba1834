// Package db はlistingサービスの投稿・写真・通報テーブルへのクエリを提供する。
package db

import (
	"github.com/jmoiron/sqlx"
)

// DBTX は*sqlx.DBと*sqlx.Txの共通インターフェース。
type DBTX interface {
	sqlx.ExtContext
}

// Queries はlistingサービスのテーブルへのクエリを実行する。
type Queries struct {
	db DBTX
}

// New はQueriesを生成する。
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// WithTx はトランザクション上で実行するQueriesを返す。
func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{db: tx}
}
