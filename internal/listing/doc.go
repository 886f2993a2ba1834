// Package listing は投稿サービスの内部実装を提供する。
//
// 行方不明者・迷子の動物・落とし物の投稿を管理する。主な責務は次の通り。
//
//   - 投稿の作成・編集・解決・削除と、条件を組み合わせた公開検索
//   - 投稿写真のアップロードと配信（storage.Store経由）
//   - 通報の受付と、モデレーター向けの審査・通報処理・統計API
//   - 投稿者への連絡メッセージの受付
//
// 状態が変わるたびにpkg/eventのイベントをnotificationサービスへ送り、
// メールとアプリ内通知への展開はnotificationサービスが担当する。
package listing
