package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/config"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
)

// maxBackoff は再送間隔の上限。
const maxBackoff = time.Hour

// maxErrorLength はlast_errorに保存するエラーメッセージの最大長。
const maxErrorLength = 500

// Result は配信ループ1回分の結果。
type Result struct {
	Claimed int
	Sent    int
	Retried int
	Failed  int
	// Skipped は停止中のため送信しなかった件数。リース切れ後に再取得される。
	Skipped int
}

// Dispatcher はアウトボックスのメールを定期的に取り出してリレーに送るバックグラウンドプロセス。
//
// 送信成功とステータス更新の間にプロセスが落ちた場合、リース切れ後に同じメールを再送する。
// つまり配信は少なくとも1回（at-least-once）になる。
type Dispatcher struct {
	queries *notificationdb.Queries
	mailer  Mailer
	from    string
	cfg     config.DispatcherConfig
	limiter *rate.Limiter
	logger  *zap.Logger
	tracer  trace.Tracer
	now     func() time.Time

	// mu はcancelとdoneへの並行アクセスを保護する。
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewDispatcher は新しいDispatcherを生成する。fromは送信元アドレス。
func NewDispatcher(queries *notificationdb.Queries, mailer Mailer, from string, cfg config.DispatcherConfig, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queries: queries,
		mailer:  mailer,
		from:    from,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), max(1, cfg.Concurrency)),
		logger:  logger,
		tracer:  otel.Tracer("github.com/nao1215/retrouvafrik/internal/notification"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Start はバックグラウンドで配信ループを開始する。既に開始している場合は何もしない。
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		d.logger.Info("配信ループを開始します", zap.Duration("interval", d.cfg.Interval))
		ticker := time.NewTicker(d.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				d.logger.Info("配信ループを停止しました")
				return
			case <-ticker.C:
				if _, err := d.RunOnce(ctx); err != nil && ctx.Err() == nil {
					d.logger.Error("配信ループでエラーが発生しました", zap.Error(err))
				}
			}
		}
	}(d.done)
}

// Stop は配信ループを停止し、実行中の送信が終わるまで待つ。
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel, d.done = nil, nil
	d.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// RunOnce は送信期限を迎えたメールを1バッチ分取り出して送信する。
func (d *Dispatcher) RunOnce(ctx context.Context) (Result, error) {
	start := time.Now()
	defer func() { metrics.DispatchDuration.Observe(time.Since(start).Seconds()) }()

	ctx, span := d.tracer.Start(ctx, "notification.dispatch")
	defer span.End()

	now := d.now()
	emails, err := d.queries.ClaimDueEmails(ctx, now, now.Add(-d.cfg.Lease), d.cfg.BatchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "claim failed")
		return Result{}, fmt.Errorf("送信対象メールの取得に失敗: %w", err)
	}
	span.SetAttributes(attribute.Int("emails.claimed", len(emails)))

	res := Result{Claimed: len(emails)}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(max(1, d.cfg.Concurrency))
	for _, e := range emails {
		g.Go(func() error {
			o := d.deliver(ctx, e)
			mu.Lock()
			defer mu.Unlock()
			switch o {
			case outcomeSent:
				res.Sent++
			case outcomeRetried:
				res.Retried++
			case outcomeFailed:
				res.Failed++
			case outcomeSkipped:
				res.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("emails.sent", res.Sent),
		attribute.Int("emails.retried", res.Retried),
		attribute.Int("emails.failed", res.Failed),
	)

	if backlog, err := d.queries.CountBacklog(context.WithoutCancel(ctx)); err == nil {
		metrics.OutboxBacklog.Set(float64(backlog))
	}
	if res.Claimed > 0 {
		d.logger.Info("メールを配信しました",
			zap.Int("claimed", res.Claimed),
			zap.Int("sent", res.Sent),
			zap.Int("retried", res.Retried),
			zap.Int("failed", res.Failed),
			zap.Int("skipped", res.Skipped),
		)
	}
	return res, nil
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeRetried
	outcomeFailed
	outcomeSkipped
)

// deliver は1通のメールを送信し、結果をアウトボックスに記録する。
func (d *Dispatcher) deliver(ctx context.Context, e notificationdb.Email) outcome {
	if err := d.limiter.Wait(ctx); err != nil {
		return outcomeSkipped
	}

	sendErr := d.mailer.Send(ctx, Message{
		From:    d.from,
		To:      e.Recipient,
		ReplyTo: e.ReplyTo,
		Subject: e.Subject,
		HTML:    e.HTMLBody,
		Text:    e.TextBody,
	})

	// 停止要求が来ていても送信結果は記録する
	uctx := context.WithoutCancel(ctx)
	log := d.logger.With(zap.String("email_id", e.ID), zap.String("kind", e.Kind))

	if sendErr == nil {
		if err := d.queries.MarkEmailSent(uctx, e.ID, d.now()); err != nil {
			log.Error("送信済みの記録に失敗しました", zap.Error(err))
		}
		metrics.EmailsSent.WithLabelValues(e.Kind).Inc()
		return outcomeSent
	}

	attempts := e.Attempts + 1
	msg := truncate(sendErr.Error(), maxErrorLength)

	if IsPermanent(sendErr) || attempts >= int64(d.cfg.MaxAttempts) {
		label := "exhausted"
		if IsPermanent(sendErr) {
			label = "permanent"
		}
		if err := d.queries.MarkEmailFailed(uctx, e.ID, msg); err != nil {
			log.Error("送信失敗の記録に失敗しました", zap.Error(err))
		}
		metrics.EmailsFailed.WithLabelValues(e.Kind, label).Inc()
		log.Warn("メールの送信を断念しました",
			zap.Int64("attempts", attempts), zap.String("outcome", label), zap.Error(sendErr))
		return outcomeFailed
	}

	next := d.now().Add(Backoff(d.cfg.BaseBackoff, attempts))
	if err := d.queries.MarkEmailRetry(uctx, e.ID, msg, next); err != nil {
		log.Error("再送予定の記録に失敗しました", zap.Error(err))
	}
	metrics.EmailsFailed.WithLabelValues(e.Kind, "retry").Inc()
	log.Warn("メールの送信に失敗しました。再送します",
		zap.Int64("attempts", attempts), zap.Time("next_attempt_at", next), zap.Error(sendErr))
	return outcomeRetried
}

// Backoff はattempts回目の失敗後の再送間隔を返す。
// base * 2^(attempts-1) で、maxBackoff を超えない。
func Backoff(base time.Duration, attempts int64) time.Duration {
	d := base
	for i := int64(1); i < attempts; i++ {
		d *= 2
		if d >= maxBackoff {
			return maxBackoff
		}
	}
	return min(d, maxBackoff)
}

// Purge は保持期間を過ぎた送信済みメールと既読通知を削除する。
func (d *Dispatcher) Purge(ctx context.Context, olderThan time.Duration) (emails, notifications int64, err error) {
	before := d.now().Add(-olderThan)
	emails, err = d.queries.DeleteSentEmailsBefore(ctx, before)
	if err != nil {
		return 0, 0, fmt.Errorf("送信済みメールの削除に失敗: %w", err)
	}
	notifications, err = d.queries.DeleteReadNotificationsBefore(ctx, before)
	if err != nil {
		return emails, 0, fmt.Errorf("既読通知の削除に失敗: %w", err)
	}
	return emails, notifications, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
