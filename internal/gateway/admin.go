package gateway

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	gatewaydb "github.com/nao1215/retrouvafrik/internal/gateway/db"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/pagination"
)

// handleListUsers はユーザー一覧を返す管理者用ハンドラ。
// roleとq（メールアドレスまたは表示名の部分一致）で絞り込める。
func (s *Server) handleListUsers() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		role := c.Query("role")
		if role != "" && !middleware.ValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rôle inconnu"})
			return
		}

		params := gatewaydb.ListUsersParams{
			Role:   role,
			Query:  c.Query("q"),
			Limit:  page.Limit(),
			Offset: page.Offset(),
		}
		ctx := c.Request.Context()
		users, err := s.queries.ListUsers(ctx, params)
		if err != nil {
			s.logger.Error("ユーザー一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des utilisateurs impossible"})
			return
		}
		total, err := s.queries.CountUsers(ctx, params)
		if err != nil {
			s.logger.Error("ユーザー数の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des utilisateurs impossible"})
			return
		}

		resp := make([]userResponse, 0, len(users))
		for _, u := range users {
			resp = append(resp, toUserResponse(u))
		}
		c.JSON(http.StatusOK, gin.H{
			"users":    resp,
			"total":    total,
			"page":     page.Number,
			"per_page": page.PerPage,
		})
	}
}

// changeRoleRequest はロール変更リクエストのJSON構造。
type changeRoleRequest struct {
	Role string `json:"role" binding:"required,oneof=user moderator admin"`
}

// handleChangeRole はユーザーのロールを変更する管理者用ハンドラ。
// 管理者は自分自身のロールを下げられない。
func (s *Server) handleChangeRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changeRoleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		targetID := c.Param("id")
		actorID := middleware.GetUserID(c)
		if targetID == actorID && req.Role != middleware.RoleAdmin {
			c.JSON(http.StatusBadRequest, gin.H{"error": "vous ne pouvez pas retirer votre propre rôle d'administrateur"})
			return
		}

		ctx := c.Request.Context()
		n, err := s.queries.UpdateUserRole(ctx, targetID, req.Role)
		if err != nil {
			s.logger.Error("ロール変更に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "changement de rôle impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "utilisateur introuvable"})
			return
		}

		user, err := s.queries.GetUserByID(ctx, targetID)
		if err != nil {
			s.logger.Error("ユーザー取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'utilisateur impossible"})
			return
		}

		s.logger.Info("ロールを変更しました",
			zap.String("actor_id", actorID),
			zap.String("user_id", targetID),
			zap.String("role", req.Role),
		)
		c.JSON(http.StatusOK, toUserResponse(user))
	}
}
