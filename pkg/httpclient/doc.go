// Package httpclient はサービス間とメールリレーへのHTTP通信を行うクライアントを提供する。
//
// listingからnotificationへのイベント送信、notificationからメールリレーへの
// 送信で使う。トレースコンテキストはotelhttpのトランスポートで伝播される。
package httpclient
