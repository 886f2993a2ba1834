package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims はJWTトークンのクレーム（ペイロード）を表す。
type JWTClaims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID string `json:"user_id"`
	// Email はユーザーのメールアドレス。
	Email string `json:"email"`
	// Role はユーザーのロール（user, moderator, admin）。
	Role string `json:"role"`
}

// tokenIssuer はJWTの発行者。
const tokenIssuer = "retrouvafrik-gateway"

// コンテキストキー。
const (
	contextKeyUserID = "user_id"
	contextKeyEmail  = "email"
	contextKeyRole   = "role"
)

// ヘッダーキー。gatewayから内部サービスへのプロキシ時に使用する。
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRole  = "X-User-Role"
)

// errMissingToken はAuthorizationヘッダーが無いことを表す。
var errMissingToken = errors.New("authorization header missing")

// GenerateJWT はユーザー情報からJWTトークンを生成する。
// gatewayサービスがログイン時に呼び出す。
func GenerateJWT(secret, userID, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := JWTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID: userID,
		Email:  email,
		Role:   role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はトークン文字列を検証してクレームを返す。
// HMAC以外の署名方式は拒否する。
func ParseJWT(secret, tokenString string) (*JWTClaims, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("想定外の署名方式です: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, errors.New("トークンが無効です")
	}
	if claims.Role == "" {
		claims.Role = RoleUser
	}
	return claims, nil
}

// bearerClaims はリクエストのAuthorizationヘッダーからクレームを取り出す。
func bearerClaims(c *gin.Context, secret string) (*JWTClaims, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return nil, errMissingToken
	}
	tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
	if !found {
		return nil, errors.New("bearer形式ではありません")
	}
	return ParseJWT(secret, tokenString)
}

// setClaims はクレームをGinコンテキストに設定する。
func setClaims(c *gin.Context, claims *JWTClaims) {
	c.Set(contextKeyUserID, claims.UserID)
	c.Set(contextKeyEmail, claims.Email)
	c.Set(contextKeyRole, claims.Role)
}

// JWTAuth はJWTトークンを検証するGinミドルウェアを返す。
// 検証に成功した場合、コンテキストに "user_id"、"email"、"role" を設定する。
func JWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, secret)
		if err != nil {
			msg := "jeton invalide"
			if errors.Is(err, errMissingToken) {
				msg = "authentification requise"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalJWTAuth はトークンがあれば検証し、無ければ匿名として通すミドルウェアを返す。
// 公開一覧のように匿名でも閲覧できるが、ログイン済みなら表示が変わるエンドポイントで使う。
// 不正なトークンが付与されている場合は401を返す。
func OptionalJWTAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := bearerClaims(c, secret)
		switch {
		case errors.Is(err, errMissingToken):
			c.Next()
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "jeton invalide"})
		default:
			setClaims(c, claims)
			c.Next()
		}
	}
}

// GetUserID はGinコンテキストからユーザーIDを取得する。未認証の場合は空文字列。
func GetUserID(c *gin.Context) string {
	return c.GetString(contextKeyUserID)
}

// GetEmail はGinコンテキストからメールアドレスを取得する。
func GetEmail(c *gin.Context) string {
	return c.GetString(contextKeyEmail)
}

// GetRole はGinコンテキストからロールを取得する。未認証の場合は空文字列。
func GetRole(c *gin.Context) string {
	return c.GetString(contextKeyRole)
}
