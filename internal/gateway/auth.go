package gateway

import (
	"database/sql"
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	gatewaydb "github.com/nao1215/retrouvafrik/internal/gateway/db"
	"github.com/nao1215/retrouvafrik/pkg/database"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

// invalidCredentials はメールアドレス不明とパスワード不一致で共通のエラーメッセージ。
const invalidCredentials = "email ou mot de passe incorrect"

// dummyHash は存在しないユーザーのログイン時に比較するハッシュ。
// 応答時間の差でメールアドレスの登録有無が判別できないようにする。
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("retrouvafrik-dummy-password"), bcrypt.MinCost)

// userResponse はユーザー情報のJSONレスポンス構造。
type userResponse struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	DisplayName string     `json:"display_name"`
	Phone       string     `json:"phone"`
	Country     string     `json:"country"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// toUserResponse はDB行をJSONレスポンスに変換する。
func toUserResponse(u gatewaydb.User) userResponse {
	r := userResponse{
		ID:          u.ID,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		Phone:       u.Phone,
		Country:     u.Country,
		Role:        u.Role,
		CreatedAt:   u.CreatedAt,
	}
	if u.LastLoginAt.Valid {
		t := u.LastLoginAt.Time
		r.LastLoginAt = &t
	}
	return r
}

// authResponse は登録・ログイン成功時のレスポンス。
type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// normalizeEmail はメールアドレスを比較用に正規化する。
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// issueToken はユーザーのJWTを発行する。
func (s *Server) issueToken(u gatewaydb.User) (string, error) {
	return middleware.GenerateJWT(s.cfg.Auth.JWTSecret, u.ID, u.Email, u.Role, s.cfg.Auth.TokenTTL)
}

// initialRole は新規ユーザーのロールを決める。
// admin_emailsに含まれるアドレスは管理者として登録される。
func (s *Server) initialRole(email string) string {
	if slices.ContainsFunc(s.cfg.AdminEmails, func(a string) bool { return normalizeEmail(a) == email }) {
		return middleware.RoleAdmin
	}
	return middleware.RoleUser
}

// registerRequest はアカウント登録リクエストのJSON構造。
type registerRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	// DisplayName は公開される表示名。
	DisplayName string `json:"display_name" binding:"required,max=80"`
	Phone       string `json:"phone" binding:"omitempty,max=30"`
	Country     string `json:"country" binding:"omitempty,africancountry"`
}

// handleRegister はアカウントを作成しJWTを返すハンドラ。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
		if err != nil {
			s.logger.Error("パスワードのハッシュ化に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création du compte impossible"})
			return
		}

		email := normalizeEmail(req.Email)
		params := gatewaydb.CreateUserParams{
			ID:           uuid.New().String(),
			Email:        email,
			PasswordHash: string(hash),
			DisplayName:  strings.TrimSpace(req.DisplayName),
			Phone:        strings.TrimSpace(req.Phone),
			Country:      strings.ToUpper(req.Country),
			Role:         s.initialRole(email),
			CreatedAt:    s.now(),
		}
		if err := s.queries.CreateUser(c.Request.Context(), params); err != nil {
			if database.IsUniqueViolation(err) {
				c.JSON(http.StatusConflict, gin.H{"error": "un compte existe déjà avec cet email"})
				return
			}
			s.logger.Error("ユーザー作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création du compte impossible"})
			return
		}

		user, err := s.queries.GetUserByID(c.Request.Context(), params.ID)
		if err != nil {
			s.logger.Error("作成したユーザーの取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création du compte impossible"})
			return
		}

		token, err := s.issueToken(user)
		if err != nil {
			s.logger.Error("JWT生成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création du compte impossible"})
			return
		}

		s.logger.Info("ユーザーを登録しました", zap.String("user_id", user.ID), zap.String("role", user.Role))
		c.JSON(http.StatusCreated, authResponse{Token: token, User: toUserResponse(user)})
	}
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleLogin はメールアドレスとパスワードを検証してJWTを返すハンドラ。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		user, err := s.queries.GetUserByEmail(c.Request.Context(), normalizeEmail(req.Email))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(req.Password))
			c.JSON(http.StatusUnauthorized, gin.H{"error": invalidCredentials})
			return
		case err != nil:
			s.logger.Error("ユーザー取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "connexion impossible"})
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": invalidCredentials})
			return
		}

		now := s.now()
		if err := s.queries.UpdateLastLogin(c.Request.Context(), user.ID, now); err != nil {
			s.logger.Warn("最終ログイン日時の更新に失敗", zap.String("user_id", user.ID), zap.Error(err))
		} else {
			user.LastLoginAt = sql.NullTime{Time: now, Valid: true}
		}

		token, err := s.issueToken(user)
		if err != nil {
			s.logger.Error("JWT生成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "connexion impossible"})
			return
		}

		c.JSON(http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
	}
}

// devTokenRequest は開発用トークン発行リクエスト。
type devTokenRequest struct {
	// Role は発行するトークンのロール。省略時はuser。
	Role string `json:"role"`
}

// handleDevToken は開発用JWTトークンを発行するハンドラを返す。
// auth.dev_tokensが有効な場合のみルーティングされる。
func (s *Server) handleDevToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req devTokenRequest
		// ボディは任意
		_ = c.ShouldBindJSON(&req)
		if req.Role == "" {
			req.Role = middleware.RoleUser
		}
		if !middleware.ValidRole(req.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "rôle inconnu"})
			return
		}

		ctx := c.Request.Context()
		email := "dev-" + req.Role + "@localhost"

		// 開発用ユーザーが存在しなければ作成
		user, err := s.queries.GetUserByEmail(ctx, email)
		if errors.Is(err, sql.ErrNoRows) {
			params := gatewaydb.CreateUserParams{
				ID:           uuid.New().String(),
				Email:        email,
				PasswordHash: string(dummyHash),
				DisplayName:  "Utilisateur de développement",
				Role:         req.Role,
				CreatedAt:    s.now(),
			}
			if err := s.queries.CreateUser(ctx, params); err != nil {
				s.logger.Error("開発ユーザー作成に失敗", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "création de l'utilisateur impossible"})
				return
			}
			user, err = s.queries.GetUserByID(ctx, params.ID)
		}
		if err != nil {
			s.logger.Error("開発ユーザー取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'utilisateur impossible"})
			return
		}

		token, err := s.issueToken(user)
		if err != nil {
			s.logger.Error("JWT生成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "génération du jeton impossible"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":   token,
			"user_id": user.ID,
			"role":    user.Role,
		})
	}
}

// handleGetCurrentUser は認証済みユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := s.queries.GetUserByID(c.Request.Context(), middleware.GetUserID(c))
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "utilisateur introuvable"})
			return
		}
		if err != nil {
			s.logger.Error("ユーザー取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'utilisateur impossible"})
			return
		}
		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
type updateProfileRequest struct {
	DisplayName string `json:"display_name" binding:"required,max=80"`
	Phone       string `json:"phone" binding:"omitempty,max=30"`
	Country     string `json:"country" binding:"omitempty,africancountry"`
}

// handleUpdateCurrentUser は認証済みユーザーのプロフィールを更新するハンドラ。
func (s *Server) handleUpdateCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}

		ctx := c.Request.Context()
		userID := middleware.GetUserID(c)
		n, err := s.queries.UpdateProfile(ctx, gatewaydb.UpdateProfileParams{
			ID:          userID,
			DisplayName: strings.TrimSpace(req.DisplayName),
			Phone:       strings.TrimSpace(req.Phone),
			Country:     strings.ToUpper(req.Country),
		})
		if err != nil {
			s.logger.Error("プロフィール更新に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mise à jour du profil impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "utilisateur introuvable"})
			return
		}

		user, err := s.queries.GetUserByID(ctx, userID)
		if err != nil {
			s.logger.Error("ユーザー取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'utilisateur impossible"})
			return
		}
		c.JSON(http.StatusOK, toUserResponse(user))
	}
}

// requireCurrentStaffRole はスタッフのロールを持つトークンについて、現在のロールと一致するか確認する。
// 降格されたユーザーは発行済みのトークンでスタッフ権限を使えず、再ログインが必要になる。
// 一般ユーザーのトークンは確認しない。
func (s *Server) requireCurrentStaffRole() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !middleware.IsStaff(c) {
			c.Next()
			return
		}
		userID := middleware.GetUserID(c)
		user, err := s.queries.GetUserByID(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			s.logger.Error("ロールの確認に失敗", zap.String("user_id", userID), zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "vérification du rôle impossible"})
			return
		}
		if err != nil || user.Role != middleware.GetRole(c) {
			s.logger.Info("ロールが一致しないトークンを拒否しました",
				zap.String("user_id", userID),
				zap.String("token_role", middleware.GetRole(c)),
			)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "votre rôle a changé, veuillez vous reconnecter"})
			return
		}
		c.Next()
	}
}
