package listing

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

// createReportRequest は通報リクエストのJSON構造。
type createReportRequest struct {
	// Reason は通報の理由。
	Reason string `json:"reason" binding:"required,oneof=spam fake inappropriate duplicate other"`
	// Details は補足説明。
	Details string `json:"details" binding:"max=1000"`
}

// handleCreateReport は投稿への通報を処理するハンドラを返す。
// 同じ利用者が同じ投稿に未処理の通報を複数持つことはできない。
func (s *Server) handleCreateReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if isOwner(c, l) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vous ne pouvez pas signaler votre propre annonce"})
			return
		}

		var req createReportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		params := listingdb.CreateReportParams{
			ID:         uuid.New().String(),
			ListingID:  l.ID,
			ReporterID: middleware.GetUserID(c),
			Reason:     req.Reason,
			Details:    strings.TrimSpace(req.Details),
			CreatedAt:  s.now(),
		}
		if err := s.queries.CreateReport(ctx, params); err != nil {
			if database.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "vous avez déjà signalé cette annonce"})
				return
			}
			s.logger.Error("通報の作成に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "signalement impossible"})
			return
		}

		s.emit(ctx, params.ID, event.AggregateTypeReport, event.TypeReportFiled, params.CreatedAt, event.ReportFiledData{
			ReportID:     params.ID,
			ListingID:    l.ID,
			ListingTitle: l.Title,
			ReporterID:   params.ReporterID,
			Reason:       params.Reason,
			Details:      params.Details,
		})

		s.logger.Info("通報を受け付けました",
			zap.String("report_id", params.ID),
			zap.String("listing_id", l.ID),
			zap.String("reason", params.Reason),
		)
		c.JSON(http.StatusCreated, gin.H{
			"id":         params.ID,
			"listing_id": l.ID,
			"reason":     params.Reason,
			"status":     listingdb.ReportOpen,
			"created_at": params.CreatedAt,
		})
	}
}

// contactRequest は投稿者への連絡リクエストのJSON構造。
type contactRequest struct {
	// Name は送信者の名前。
	Name string `json:"name" binding:"required,max=100"`
	// Email は返信先。ログイン中で省略した場合はアカウントのメールアドレスを使う。
	Email string `json:"email" binding:"omitempty,email,max=254"`
	// Phone は送信者の電話番号。
	Phone string `json:"phone" binding:"max=30"`
	// Message は投稿者へのメッセージ。
	Message string `json:"message" binding:"required,min=10,max=2000"`
}

// handleContact は投稿者への連絡メッセージを受け付けるハンドラを返す。
// 匿名でも利用でき、メールはnotificationサービスが投稿者へ送る。
func (s *Server) handleContact() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if l.Status != listingdb.StatusPublished {
			c.JSON(http.StatusConflict, gin.H{"error": "cette annonce n'accepte plus de messages"})
			return
		}
		if isOwner(c, l) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vous ne pouvez pas vous contacter vous-même"})
			return
		}

		var req contactRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		if req.Email == "" {
			req.Email = middleware.GetEmail(c)
		}
		if req.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "adresse e-mail requise pour recevoir une réponse"})
			return
		}

		data := event.ContactRequestedData{
			ListingID:    l.ID,
			ListingTitle: l.Title,
			OwnerID:      l.OwnerID,
			OwnerEmail:   l.OwnerEmail,
			SenderName:   strings.TrimSpace(req.Name),
			SenderEmail:  strings.ToLower(strings.TrimSpace(req.Email)),
			SenderPhone:  strings.TrimSpace(req.Phone),
			Message:      strings.TrimSpace(req.Message),
		}
		// 連絡はメール送信そのものが目的なので、送信できなければ失敗として返す
		ctx := c.Request.Context()
		if err := s.send(ctx, l.ID, event.AggregateTypeListing, event.TypeContactRequested, s.now(), data); err != nil {
			s.logger.Error("連絡メッセージの送信に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "message non envoyé, veuillez réessayer plus tard"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"message":    "message transmis à l'auteur de l'annonce",
			"listing_id": l.ID,
		})
	}
}
