package notification

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/pagination"
)

var emailStatuses = map[string]bool{
	notificationdb.EmailPending: true,
	notificationdb.EmailSending: true,
	notificationdb.EmailSent:    true,
	notificationdb.EmailFailed:  true,
}

// emailResponse はアウトボックスのメール。本文は含めない。
type emailResponse struct {
	ID            string  `json:"id"`
	Recipient     string  `json:"recipient"`
	ReplyTo       string  `json:"reply_to,omitempty"`
	Subject       string  `json:"subject"`
	Kind          string  `json:"kind"`
	ListingID     string  `json:"listing_id,omitempty"`
	Status        string  `json:"status"`
	Attempts      int64   `json:"attempts"`
	LastError     string  `json:"last_error,omitempty"`
	NextAttemptAt string  `json:"next_attempt_at"`
	SentAt        *string `json:"sent_at,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

func toEmailResponse(e notificationdb.Email) emailResponse {
	r := emailResponse{
		ID:            e.ID,
		Recipient:     e.Recipient,
		ReplyTo:       e.ReplyTo,
		Subject:       e.Subject,
		Kind:          e.Kind,
		ListingID:     e.ReferenceID,
		Status:        e.Status,
		Attempts:      e.Attempts,
		LastError:     e.LastError,
		NextAttemptAt: e.NextAttemptAt.UTC().Format(time.RFC3339),
		CreatedAt:     e.CreatedAt.UTC().Format(time.RFC3339),
	}
	if e.SentAt.Valid {
		v := e.SentAt.Time.UTC().Format(time.RFC3339)
		r.SentAt = &v
	}
	return r
}

// handleListOutbox はアウトボックスのメールを新しい順に返す。statusで絞り込める。
func (s *Server) handleListOutbox() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := c.Query("status")
		if status != "" && !emailStatuses[status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "statut invalide"})
			return
		}
		page, err := pagination.FromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		params := notificationdb.ListEmailsParams{Status: status, Limit: page.Limit(), Offset: page.Offset()}
		emails, err := s.queries.ListEmails(ctx, params)
		if err != nil {
			s.logger.Error("アウトボックスの取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des e-mails impossible"})
			return
		}
		total, err := s.queries.CountEmails(ctx, params)
		if err != nil {
			s.logger.Error("アウトボックスの件数取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des e-mails impossible"})
			return
		}

		resp := make([]emailResponse, 0, len(emails))
		for _, e := range emails {
			resp = append(resp, toEmailResponse(e))
		}
		c.JSON(http.StatusOK, gin.H{
			"emails":   resp,
			"total":    total,
			"page":     page.Number,
			"per_page": page.PerPage,
		})
	}
}

// handleRetryEmail は送信に失敗したメールを再送対象に戻す。
func (s *Server) handleRetryEmail() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		id := c.Param("id")

		e, err := s.queries.GetEmail(ctx, id)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "e-mail introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("メールの取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'e-mail impossible"})
			return
		}
		if e.Status != notificationdb.EmailFailed {
			c.JSON(http.StatusConflict, gin.H{"error": "seuls les e-mails en échec peuvent être renvoyés"})
			return
		}

		n, err := s.queries.RetryEmail(ctx, id, s.now())
		if err != nil {
			s.logger.Error("メールの再送設定に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "relance de l'e-mail impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "seuls les e-mails en échec peuvent être renvoyés"})
			return
		}
		s.logger.Info("メールを再送対象に戻しました",
			zap.String("email_id", id), zap.String("by", middleware.GetUserID(c)))

		e, err = s.queries.GetEmail(ctx, id)
		if err != nil {
			s.logger.Error("メールの取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'e-mail impossible"})
			return
		}
		c.JSON(http.StatusOK, toEmailResponse(e))
	}
}
