package notification

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	notificationdb "github.com/nao1215/retrouvafrik/internal/notification/db"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// maxAlertsPerUser は1ユーザーが登録できるアラートの上限。
const maxAlertsPerUser = 20

type alertResponse struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Category    string `json:"category,omitempty"`
	Kind        string `json:"kind,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryName string `json:"country_name,omitempty"`
	City        string `json:"city,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toAlertResponse(a notificationdb.Alert) alertResponse {
	r := alertResponse{
		ID:        a.ID,
		Email:     a.Email,
		Category:  a.Category,
		Kind:      a.Kind,
		Country:   a.Country,
		City:      a.City,
		CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
	}
	if a.Country != "" {
		r.CountryName = validation.CountryName(a.Country)
	}
	return r
}

// createAlertRequest はアラート登録のリクエスト。空の項目はすべてに一致する。
type createAlertRequest struct {
	Category string `json:"category" binding:"omitempty,category"`
	Kind     string `json:"kind" binding:"omitempty,listingkind"`
	Country  string `json:"country" binding:"omitempty,africancountry"`
	City     string `json:"city" binding:"max=100"`
	// Email は通知先。省略時はログイン中のアドレス。
	Email string `json:"email" binding:"omitempty,email"`
}

// handleListAlerts はログイン中のユーザーのアラートを返す。
func (s *Server) handleListAlerts() gin.HandlerFunc {
	return func(c *gin.Context) {
		alerts, err := s.queries.ListAlertsByUser(c.Request.Context(), middleware.GetUserID(c))
		if err != nil {
			s.logger.Error("アラート一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des alertes impossible"})
			return
		}
		resp := make([]alertResponse, 0, len(alerts))
		for _, a := range alerts {
			resp = append(resp, toAlertResponse(a))
		}
		c.JSON(http.StatusOK, gin.H{"alerts": resp})
	}
}

// handleCreateAlert はアラートを登録する。
func (s *Server) handleCreateAlert() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAlertRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		req.Country = strings.ToUpper(req.Country)
		req.City = strings.TrimSpace(req.City)
		if req.Category == "" && req.Kind == "" && req.Country == "" && req.City == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "indiquez au moins un critère (catégorie, type, pays ou ville)"})
			return
		}
		if req.Email == "" {
			req.Email = middleware.GetEmail(c)
		}
		if req.Email == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "adresse e-mail requise"})
			return
		}

		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()
		n, err := s.queries.CountAlertsByUser(ctx, userID)
		if err != nil {
			s.logger.Error("アラート数の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création de l'alerte impossible"})
			return
		}
		if n >= maxAlertsPerUser {
			c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("%d alertes maximum", maxAlertsPerUser)})
			return
		}

		params := notificationdb.CreateAlertParams{
			ID:        uuid.New().String(),
			UserID:    userID,
			Email:     req.Email,
			Category:  req.Category,
			Kind:      req.Kind,
			Country:   req.Country,
			City:      req.City,
			CreatedAt: s.now(),
		}
		err = s.queries.CreateAlert(ctx, params)
		if database.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "une alerte identique existe déjà"})
			return
		}
		if err != nil {
			s.logger.Error("アラートの作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création de l'alerte impossible"})
			return
		}

		c.JSON(http.StatusCreated, toAlertResponse(notificationdb.Alert(params)))
	}
}

// handleDeleteAlert はアラートを削除する。本人のアラートのみ削除できる。
func (s *Server) handleDeleteAlert() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)
		ctx := c.Request.Context()

		a, err := s.queries.GetAlert(ctx, c.Param("id"))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "alerte introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("アラートの取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de l'alerte impossible"})
			return
		}
		if a.UserID != userID {
			c.JSON(http.StatusForbidden, gin.H{"error": "cette alerte ne vous appartient pas"})
			return
		}

		if _, err := s.queries.DeleteAlert(ctx, a.ID, userID); err != nil {
			s.logger.Error("アラートの削除に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de l'alerte impossible"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
