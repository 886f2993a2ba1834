// Package notification は通知サービスの内部実装を提供する。
//
// listingサービスから受け取ったイベントをアプリ内通知とメールに展開する。
//
//   - アプリ内通知の一覧取得と既読管理
//   - 新着投稿アラートの登録と条件照合
//   - メールのアウトボックスと、それを送信する配信ループ（Dispatcher）
//
// メールは埋め込みテンプレートから描画してアウトボックスに積み、
// 配信ループが一定間隔で取り出してHTTPのメールリレーに渡す。
package notification
