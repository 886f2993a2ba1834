package notification

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/httpclient"
)

// relayTimeout はリレー1回あたりのタイムアウト。
const relayTimeout = 15 * time.Second

// Message はメールリレーに送るメール。
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	ReplyTo string `json:"reply_to,omitempty"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NewMailer は設定に応じたMailerを返す。リレーURLが無い場合は送信内容をログに出すだけになる。
func NewMailer(cfg config.MailConfig, logger *zap.Logger) Mailer {
	if cfg.RelayURL == "" {
		return &LogMailer{logger: logger}
	}
	return NewRelayMailer(cfg.RelayURL, cfg.APIKey)
}

// RelayMailer はHTTPのメールリレーにJSONでメールを渡す。
type RelayMailer struct {
	client *httpclient.Client
}

// NewRelayMailer はrelayURLにPOSTするMailerを生成する。apiKeyはBearerトークンとして送る。
func NewRelayMailer(relayURL, apiKey string) *RelayMailer {
	opts := []httpclient.Option{httpclient.WithTimeout(relayTimeout)}
	if apiKey != "" {
		opts = append(opts, httpclient.WithHeader("Authorization", "Bearer "+apiKey))
	}
	return &RelayMailer{client: httpclient.New(relayURL, opts...)}
}

// Send はメールをリレーに渡す。2xx以外はhttpclient.StatusErrorになる。
func (m *RelayMailer) Send(ctx context.Context, msg Message) error {
	return m.client.PostJSON(ctx, "", msg, nil)
}

// LogMailer は送信せずにログへ出力する。開発環境用。
type LogMailer struct {
	logger *zap.Logger
}

// Send はメールの宛先と件名をログに出力する。
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("メールを送信しました（ログ出力のみ）",
		zap.String("to", msg.To),
		zap.String("reply_to", msg.ReplyTo),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// IsPermanent は再送しても成功しない失敗かどうかを返す。
// リレーが4xxを返した場合が該当する。ただし408と429は一時的な失敗として扱う。
func IsPermanent(err error) bool {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return false
	}
	switch se.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return se.StatusCode >= 400 && se.StatusCode < 500
}
