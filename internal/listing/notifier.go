package listing

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/httpclient"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

// notifyTimeout はイベント送信1回あたりのタイムアウト。
const notifyTimeout = 5 * time.Second

// Notifier はイベントをnotificationサービスへ届ける。
type Notifier interface {
	Notify(ctx context.Context, ev *event.Event) error
}

// HTTPNotifier はnotificationサービスの内部APIにイベントをPOSTする。
type HTTPNotifier struct {
	client *httpclient.Client
}

// NewHTTPNotifier は内部トークン付きのHTTPNotifierを生成する。
func NewHTTPNotifier(baseURL, internalToken string) *HTTPNotifier {
	return &HTTPNotifier{
		client: httpclient.New(baseURL,
			httpclient.WithHeader(middleware.HeaderInternalToken, internalToken),
			httpclient.WithTimeout(notifyTimeout),
		),
	}
}

// Notify はイベントを送信する。
func (n *HTTPNotifier) Notify(ctx context.Context, ev *event.Event) error {
	if err := n.client.PostJSON(ctx, "/api/v1/internal/events", ev, nil); err != nil {
		return fmt.Errorf("イベント %s の送信に失敗: %w", ev.EventType, err)
	}
	return nil
}
