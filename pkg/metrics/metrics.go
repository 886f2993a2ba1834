// Package metrics はPrometheusのメトリクスを定義する。
//
// すべてのコレクタはpromautoでデフォルトレジストリに登録され、
// 各サービスの /metrics エンドポイントから公開される。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "retrouvafrik"

var (
	// HTTPRequests はHTTPリクエスト数。
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests by service, method, route and status",
	}, []string{"service", "method", "route", "status"})

	// HTTPDuration はHTTPリクエストの処理時間。
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"service", "method", "route"})

	// ListingsCreated はカテゴリ別の投稿数。
	ListingsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listing",
		Name:      "created_total",
		Help:      "Listings created by category and kind",
	}, []string{"category", "kind"})

	// ModerationDecisions はモデレーション結果の件数。
	ModerationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "listing",
		Name:      "moderation_decisions_total",
		Help:      "Moderation decisions by outcome",
	}, []string{"decision"})

	// FanoutRecipients は1イベントあたりの配信先数。
	FanoutRecipients = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "fanout_recipients",
		Help:      "Recipients per fanned-out event",
		Buckets:   []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
	}, []string{"event_type"})

	// EmailsSent は送信に成功したメール数。
	EmailsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "emails_sent_total",
		Help:      "Emails accepted by the relay",
	}, []string{"kind"})

	// EmailsFailed は送信に失敗したメール数。
	// Labels: kind, outcome (retry, permanent, exhausted)
	EmailsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "emails_failed_total",
		Help:      "Failed email deliveries by outcome",
	}, []string{"kind", "outcome"})

	// DispatchDuration は配信ループ1回あたりの処理時間。
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "dispatch_duration_seconds",
		Help:      "Duration of one dispatcher pass",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	})

	// OutboxBacklog は未送信メール数。
	OutboxBacklog = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "notification",
		Name:      "outbox_backlog",
		Help:      "Emails waiting for delivery",
	})
)

// Handler は /metrics 用のHTTPハンドラを返す。
func Handler() http.Handler {
	return promhttp.Handler()
}
