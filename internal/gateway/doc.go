// Package gateway はAPI Gatewayサービスの内部実装を提供する。
//
// メールアドレスとパスワードによるアカウント登録とログイン、JWT発行、
// ロールによるアクセス制御、内部サービス（listing, notification）への
// リクエスト転送を担当する。外部からアクセス可能な唯一のサービスであり、
// セキュリティの境界線として機能する。
package gateway
