package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// ロール。
const (
	// RoleUser は一般ユーザー。
	RoleUser = "user"
	// RoleModerator は投稿と通報を審査できるユーザー。
	RoleModerator = "moderator"
	// RoleAdmin はユーザーのロールも変更できる管理者。
	RoleAdmin = "admin"
)

// ValidRole はロールとして有効な値かどうかを返す。
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}

// IsStaffRole はロールがモデレーター以上かどうかを返す。
func IsStaffRole(role string) bool {
	return role == RoleModerator || role == RoleAdmin
}

// IsStaff はリクエストのユーザーがモデレーター以上かどうかを返す。
func IsStaff(c *gin.Context) bool {
	return IsStaffRole(GetRole(c))
}

// RequireRole は指定ロールのいずれかを持つユーザーのみ通すミドルウェアを返す。
// JWTAuthの後に適用する。
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetUserID(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentification requise"})
			return
		}
		if !slices.Contains(roles, GetRole(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "accès réservé"})
			return
		}
		c.Next()
	}
}
