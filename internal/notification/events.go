package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// アプリ内通知の種類。
const (
	KindListingAlert     = "listing_alert"
	KindListingPublished = "listing_published"
	KindListingRejected  = "listing_rejected"
	KindListingResolved  = "listing_resolved"
	KindContactRequest   = "contact_request"
	KindMessage          = "message"
)

var (
	// errIgnoredEvent は展開対象でないイベント。
	errIgnoredEvent = errors.New("ignored event")
	// errDuplicateEvent は受信済みのイベント。
	errDuplicateEvent = errors.New("duplicate event")
	// errBadPayload はイベントのデータが読めない。
	errBadPayload = errors.New("bad event payload")
)

// delivery は1回の展開で作る通知とメール。まとめて1トランザクションで書き込む。
type delivery struct {
	notifications []notificationdb.CreateNotificationParams
	emails        []notificationdb.EnqueueEmailParams
}

// recipients は通知とメールの宛先の延べ数。
func (d *delivery) recipients() int {
	return len(d.notifications) + len(d.emails)
}

// notify はアプリ内通知を追加する。
func (s *Server) notify(d *delivery, userID, kind, referenceID, title, message, link string) {
	d.notifications = append(d.notifications, notificationdb.CreateNotificationParams{
		ID:          uuid.New().String(),
		UserID:      userID,
		Kind:        kind,
		ReferenceID: referenceID,
		Title:       title,
		Message:     message,
		Link:        link,
		CreatedAt:   s.now(),
	})
}

// mail はテンプレートを描画してメールを追加する。
func (s *Server) mail(d *delivery, to, replyTo, tmpl, referenceID string, data MailData) error {
	data.SiteURL = s.cfg.Mail.SiteURL
	r, err := s.renderer.Render(tmpl, data)
	if err != nil {
		return err
	}
	d.emails = append(d.emails, notificationdb.EnqueueEmailParams{
		ID:          uuid.New().String(),
		Recipient:   to,
		ReplyTo:     replyTo,
		Subject:     r.Subject,
		HTMLBody:    r.HTML,
		TextBody:    r.Text,
		Kind:        tmpl,
		ReferenceID: referenceID,
		CreatedAt:   s.now(),
	})
	return nil
}

// commit は通知とメールを1トランザクションで書き込む。evが指定された場合は受信済みとして記録する。
func (s *Server) commit(ctx context.Context, ev *event.Event, d *delivery) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗: %w", err)
	}
	defer tx.Rollback()

	q := s.queries.WithTx(tx)
	if ev != nil {
		err := q.RecordEvent(ctx, notificationdb.RecordEventParams{
			ID:          ev.ID,
			EventType:   string(ev.EventType),
			AggregateID: ev.AggregateID,
			Recipients:  d.recipients(),
			ReceivedAt:  s.now(),
		})
		if database.IsUniqueViolation(err) {
			return errDuplicateEvent
		}
		if err != nil {
			return fmt.Errorf("イベントの記録に失敗: %w", err)
		}
	}
	for _, n := range d.notifications {
		if err := q.CreateNotification(ctx, n); err != nil {
			return fmt.Errorf("通知の作成に失敗: %w", err)
		}
	}
	for _, e := range d.emails {
		if err := q.EnqueueEmail(ctx, e); err != nil {
			return fmt.Errorf("メールの登録に失敗: %w", err)
		}
	}
	return tx.Commit()
}

// handleEvent はlistingサービスからイベントを受け取り、通知とメールに展開するハンドラ。
func (s *Server) handleEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev event.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		if err := ev.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id, event_type et aggregate_id sont obligatoires"})
			return
		}
		log := s.logger.With(
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.EventType)),
			zap.String("aggregate_id", ev.AggregateID),
		)

		d, err := s.fanout(c.Request.Context(), &ev)
		switch {
		case errors.Is(err, errIgnoredEvent):
			log.Debug("展開対象外のイベントを無視しました")
			c.JSON(http.StatusAccepted, gin.H{"status": "ignored"})
			return
		case errors.Is(err, errBadPayload):
			log.Warn("イベントのデータが不正です", zap.Error(err))
			c.JSON(http.StatusBadRequest, gin.H{"error": "données de l'événement invalides"})
			return
		case err != nil:
			log.Error("イベントの展開に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement de l'événement impossible"})
			return
		}

		err = s.commit(c.Request.Context(), &ev, d)
		if errors.Is(err, errDuplicateEvent) {
			log.Info("受信済みのイベントです")
			c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
			return
		}
		if err != nil {
			log.Error("通知の保存に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement de l'événement impossible"})
			return
		}

		metrics.FanoutRecipients.WithLabelValues(string(ev.EventType)).Observe(float64(d.recipients()))
		log.Info("イベントを展開しました",
			zap.Int("notifications", len(d.notifications)), zap.Int("emails", len(d.emails)))
		c.JSON(http.StatusAccepted, gin.H{
			"status":        "accepted",
			"notifications": len(d.notifications),
			"emails":        len(d.emails),
		})
	}
}

// fanout はイベントの種類ごとに宛先を決め、通知とメールを組み立てる。
func (s *Server) fanout(ctx context.Context, ev *event.Event) (*delivery, error) {
	switch ev.EventType {
	case event.TypeListingPublished:
		data, err := decode[event.ListingData](ev)
		if err != nil {
			return nil, err
		}
		return s.fanoutPublished(ctx, data)
	case event.TypeListingSubmitted:
		data, err := decode[event.ListingData](ev)
		if err != nil {
			return nil, err
		}
		d := &delivery{}
		return d, s.mailAdmins(d, TemplateListingSubmitted, data.ListingID, s.listingMail(data))
	case event.TypeListingRejected:
		data, err := decode[event.ListingRejectedData](ev)
		if err != nil {
			return nil, err
		}
		return s.fanoutRejected(data)
	case event.TypeListingResolved:
		data, err := decode[event.ListingData](ev)
		if err != nil {
			return nil, err
		}
		return s.fanoutResolved(ctx, data)
	case event.TypeReportFiled:
		data, err := decode[event.ReportFiledData](ev)
		if err != nil {
			return nil, err
		}
		d := &delivery{}
		return d, s.mailAdmins(d, TemplateReportFiled, data.ListingID, MailData{
			ListingURL:   s.listingURL(data.ListingID),
			ListingTitle: data.ListingTitle,
			Reason:       data.Reason,
			Details:      data.Details,
		})
	case event.TypeContactRequested:
		data, err := decode[event.ContactRequestedData](ev)
		if err != nil {
			return nil, err
		}
		return s.fanoutContact(data)
	default:
		return nil, errIgnoredEvent
	}
}

// fanoutPublished は条件に一致するアラートの持ち主と投稿者に通知する。
// アラート経由のメールは宛先アドレスごとに1通、アプリ内通知はユーザーごとに1件にまとめる。
func (s *Server) fanoutPublished(ctx context.Context, data *event.ListingData) (*delivery, error) {
	if data.ListingID == "" || data.OwnerID == "" {
		return nil, fmt.Errorf("%w: listing_id et owner_id requis", errBadPayload)
	}
	alerts, err := s.queries.MatchAlerts(ctx, notificationdb.MatchAlertsParams{
		Category:      data.Category,
		Kind:          data.Kind,
		Country:       strings.ToUpper(data.Country),
		City:          data.City,
		ExcludeUserID: data.OwnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("アラートの照合に失敗: %w", err)
	}

	d := &delivery{}
	md := s.listingMail(data)
	link := listingPath(data.ListingID)
	title := "Nouvelle annonce : " + data.Title
	message := fmt.Sprintf("%s (%s) à %s", md.Category, md.Kind, place(md))

	seenEmails := map[string]bool{strings.ToLower(data.OwnerEmail): true}
	seenUsers := map[string]bool{data.OwnerID: true}
	for _, a := range alerts {
		if !seenUsers[a.UserID] {
			seenUsers[a.UserID] = true
			s.notify(d, a.UserID, KindListingAlert, data.ListingID, title, message, link)
		}
		email := strings.ToLower(a.Email)
		if seenEmails[email] {
			continue
		}
		seenEmails[email] = true
		if err := s.mail(d, a.Email, "", TemplateListingAlert, data.ListingID, md); err != nil {
			return nil, err
		}
	}

	s.notify(d, data.OwnerID, KindListingPublished, data.ListingID,
		"Votre annonce est en ligne", data.Title, link)
	if data.OwnerEmail != "" {
		if err := s.mail(d, data.OwnerEmail, "", TemplateListingPublished, data.ListingID, md); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// fanoutRejected は投稿者に却下理由を知らせる。
func (s *Server) fanoutRejected(data *event.ListingRejectedData) (*delivery, error) {
	if data.ListingID == "" || data.OwnerID == "" {
		return nil, fmt.Errorf("%w: listing_id et owner_id requis", errBadPayload)
	}
	d := &delivery{}
	s.notify(d, data.OwnerID, KindListingRejected, data.ListingID,
		"Annonce non publiée : "+data.Title, data.Reason, listingPath(data.ListingID))
	if data.OwnerEmail != "" {
		md := s.listingMail(&data.ListingData)
		md.Reason = data.Reason
		if err := s.mail(d, data.OwnerEmail, "", TemplateListingRejected, data.ListingID, md); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// fanoutResolved は投稿者に解決を確認し、アラートで知らせたユーザーにも解決を伝える。
func (s *Server) fanoutResolved(ctx context.Context, data *event.ListingData) (*delivery, error) {
	if data.ListingID == "" || data.OwnerID == "" {
		return nil, fmt.Errorf("%w: listing_id et owner_id requis", errBadPayload)
	}
	followers, err := s.queries.ListNotifiedUsers(ctx, data.ListingID, KindListingAlert)
	if err != nil {
		return nil, fmt.Errorf("通知済みユーザーの取得に失敗: %w", err)
	}

	d := &delivery{}
	link := listingPath(data.ListingID)
	s.notify(d, data.OwnerID, KindListingResolved, data.ListingID,
		"Annonce résolue", data.Title, link)
	if data.OwnerEmail != "" {
		if err := s.mail(d, data.OwnerEmail, "", TemplateListingResolved, data.ListingID, s.listingMail(data)); err != nil {
			return nil, err
		}
	}
	for _, userID := range followers {
		if userID == data.OwnerID {
			continue
		}
		s.notify(d, userID, KindListingResolved, data.ListingID,
			"Retrouvé : "+data.Title, "Une annonce que vous suiviez a été résolue.", link)
	}
	return d, nil
}

// fanoutContact は投稿者に連絡メッセージを転送する。返信先は送信者。
func (s *Server) fanoutContact(data *event.ContactRequestedData) (*delivery, error) {
	if data.OwnerEmail == "" || data.SenderEmail == "" {
		return nil, fmt.Errorf("%w: owner_email et sender_email requis", errBadPayload)
	}
	d := &delivery{}
	if data.OwnerID != "" {
		s.notify(d, data.OwnerID, KindContactRequest, data.ListingID,
			"Nouveau message de "+data.SenderName, data.ListingTitle, listingPath(data.ListingID))
	}
	err := s.mail(d, data.OwnerEmail, data.SenderEmail, TemplateContactRequest, data.ListingID, MailData{
		ListingURL:   s.listingURL(data.ListingID),
		ListingTitle: data.ListingTitle,
		SenderName:   data.SenderName,
		SenderEmail:  data.SenderEmail,
		SenderPhone:  data.SenderPhone,
		Message:      data.Message,
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// mailAdmins は設定された管理者アドレスにメールを送る。重複したアドレスには1通だけ送る。
func (s *Server) mailAdmins(d *delivery, tmpl, referenceID string, data MailData) error {
	if len(s.cfg.AdminEmails) == 0 {
		s.logger.Warn("管理者のメールアドレスが未設定のため通知をスキップします", zap.String("template", tmpl))
		return nil
	}
	seen := map[string]bool{}
	for _, addr := range s.cfg.AdminEmails {
		key := strings.ToLower(addr)
		if seen[key] {
			continue
		}
		seen[key] = true
		if err := s.mail(d, addr, "", tmpl, referenceID, data); err != nil {
			return err
		}
	}
	return nil
}

// listingMail は投稿イベントからメールテンプレートの値を組み立てる。
func (s *Server) listingMail(data *event.ListingData) MailData {
	return MailData{
		ListingURL:   s.listingURL(data.ListingID),
		ListingTitle: data.Title,
		Category:     validation.CategoryLabel(data.Category),
		Kind:         validation.KindLabel(data.Kind),
		Country:      validation.CountryName(data.Country),
		City:         data.City,
		EventDate:    data.EventDate,
	}
}

// listingPath はフロントエンドの投稿ページのパス。
func listingPath(id string) string {
	return "/annonces/" + id
}

func (s *Server) listingURL(id string) string {
	return strings.TrimRight(s.cfg.Mail.SiteURL, "/") + listingPath(id)
}

func place(md MailData) string {
	if md.City == "" {
		return md.Country
	}
	return md.City + ", " + md.Country
}

// decode はイベントのデータを読み込む。失敗した場合はerrBadPayloadを返す。
func decode[T any](ev *event.Event) (*T, error) {
	data, err := event.DecodeData[T](ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errBadPayload, err)
	}
	return data, nil
}
