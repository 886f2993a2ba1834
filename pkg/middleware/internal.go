package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// HeaderInternalToken はサービス間の内部API呼び出しに付与する共有トークンのヘッダー。
const HeaderInternalToken = "X-Internal-Token"

// InternalAuth は内部APIを共有トークンで保護するミドルウェアを返す。
func InternalAuth(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderInternalToken)
		if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "appel interne refusé"})
			return
		}
		c.Next()
	}
}
