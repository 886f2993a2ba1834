// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// JWT認証トークンの検証、ロールによるアクセス制御、サービス間の内部認証、
// パニックリカバリ、CORS設定、Prometheusメトリクス計測など、
// 全サービスで共通して使用するミドルウェアを含む。
package middleware
