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

// notificationResponse は通知のJSONレスポンス構造。
type notificationResponse struct {
	// ID は通知の一意識別子。
	ID string `json:"id"`
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id"`
	// Kind は通知の種類。
	Kind string `json:"kind"`
	// ListingID は関連する投稿のID。
	ListingID string `json:"listing_id,omitempty"`
	// Title は通知のタイトル。
	Title string `json:"title"`
	// Message は通知メッセージ。
	Message string `json:"message"`
	// Link はフロントエンドの遷移先。
	Link string `json:"link,omitempty"`
	// IsRead は通知の既読状態。
	IsRead bool `json:"is_read"`
	// CreatedAt は通知の作成日時（RFC3339形式）。
	CreatedAt string `json:"created_at"`
}

// toNotificationResponse はDB行をJSONレスポンスに変換する。
func toNotificationResponse(n notificationdb.Notification) notificationResponse {
	return notificationResponse{
		ID:        n.ID,
		UserID:    n.UserID,
		Kind:      n.Kind,
		ListingID: n.ReferenceID,
		Title:     n.Title,
		Message:   n.Message,
		Link:      n.Link,
		IsRead:    n.IsRead != 0,
		CreatedAt: n.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// toNotificationResponses はDB行のスライスをJSONレスポンスのスライスに変換する。
func toNotificationResponses(notifications []notificationdb.Notification) []notificationResponse {
	responses := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		responses = append(responses, toNotificationResponse(n))
	}
	return responses
}

// notificationPage は通知一覧のレスポンス。
type notificationPage struct {
	Notifications []notificationResponse `json:"notifications"`
	Total         int64                  `json:"total"`
	Page          uint64                 `json:"page"`
	PerPage       uint64                 `json:"per_page"`
}

// handleList は認証済みユーザーの通知一覧を新しい順に返すハンドラ。
func (s *Server) handleList() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		page, err := pagination.FromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx := c.Request.Context()
		notifications, err := s.queries.ListNotificationsByUserID(ctx, userID, page.Limit(), page.Offset())
		if err != nil {
			s.logger.Error("通知一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des notifications impossible"})
			return
		}
		total, err := s.queries.CountNotificationsByUserID(ctx, userID)
		if err != nil {
			s.logger.Error("通知数の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des notifications impossible"})
			return
		}

		c.JSON(http.StatusOK, notificationPage{
			Notifications: toNotificationResponses(notifications),
			Total:         total,
			Page:          page.Number,
			PerPage:       page.PerPage,
		})
	}
}

// handleListUnread は認証済みユーザーの未読通知一覧を返すハンドラ。
func (s *Server) handleListUnread() gin.HandlerFunc {
	return func(c *gin.Context) {
		notifications, err := s.queries.ListUnreadNotifications(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.logger.Error("未読通知一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des notifications impossible"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"notifications": toNotificationResponses(notifications),
			"count":         len(notifications),
		})
	}
}

// handleMarkAsRead は指定された通知を既読にするハンドラ。
func (s *Server) handleMarkAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()

		// 通知の存在確認と所有者チェック
		n, err := s.queries.GetNotificationByID(ctx, c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "notification introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("通知の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de la notification impossible"})
			return
		}
		if n.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "cette notification ne vous appartient pas"})
			return
		}

		if err := s.queries.MarkAsRead(ctx, n.ID); err != nil {
			s.logger.Error("通知の既読処理に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mise à jour de la notification impossible"})
			return
		}

		n.IsRead = 1
		c.JSON(http.StatusOK, toNotificationResponse(n))
	}
}

// handleMarkAllAsRead は認証済みユーザーの全通知を既読にするハンドラ。
func (s *Server) handleMarkAllAsRead() gin.HandlerFunc {
	return func(c *gin.Context) {
		updated, err := s.queries.MarkAllAsRead(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.logger.Error("全通知の既読処理に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mise à jour des notifications impossible"})
			return
		}

		c.JSON(http.StatusOK, gin.H{"updated": updated})
	}
}

// sendRequest は通知送信リクエストのJSON構造。
type sendRequest struct {
	// UserID は通知先のユーザーID。
	UserID string `json:"user_id" binding:"required"`
	// Title は通知のタイトル。
	Title string `json:"title" binding:"required,max=200"`
	// Message は通知メッセージ。
	Message string `json:"message" binding:"required,max=5000"`
	// ListingID は関連する投稿のID。
	ListingID string `json:"listing_id"`
	// Email を指定するとメールでも送る。
	Email string `json:"email" binding:"omitempty,email"`
}

// handleSend はアプリ内通知を作成し、宛先があればメールも送るハンドラ。
func (s *Server) handleSend() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		d := &delivery{}
		link := ""
		listingURL := ""
		if req.ListingID != "" {
			link = listingPath(req.ListingID)
			listingURL = s.listingURL(req.ListingID)
		}
		s.notify(d, req.UserID, KindMessage, req.ListingID, req.Title, req.Message, link)
		if req.Email != "" {
			err := s.mail(d, req.Email, "", TemplateDirectMessage, req.ListingID, MailData{
				Title:      req.Title,
				Message:    req.Message,
				ListingURL: listingURL,
			})
			if err != nil {
				s.logger.Error("メールの描画に失敗", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "envoi de la notification impossible"})
				return
			}
		}

		if err := s.commit(c.Request.Context(), nil, d); err != nil {
			s.logger.Error("通知の作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "envoi de la notification impossible"})
			return
		}

		resp := gin.H{"id": d.notifications[0].ID}
		if len(d.emails) > 0 {
			resp["email_id"] = d.emails[0].ID
		}
		c.JSON(http.StatusCreated, resp)
	}
}
