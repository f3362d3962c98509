package middleware

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// SessionClaims はBearerセッショントークンのクレーム（ペイロード）を表す。
// ログイン時に取得した資格情報を保持し、Cookieを使わないAPIクライアントに渡す。
type SessionClaims struct {
	jwt.RegisteredClaims
	// Email は認証済みユーザーのメールアドレス。
	Email string `json:"email"`
	// Provider はログインに使用した認証プロバイダ名。
	Provider string `json:"provider"`
	// IDToken は認証プロバイダが発行したIDトークン。
	IDToken string `json:"id_token"`
	// TransferToken は転送バックエンド用のアクセストークン。
	TransferToken string `json:"transfer_token"`
	// TransferExpiry はTransferTokenの有効期限。nilは不明を表す。
	TransferExpiry *jwt.NumericDate `json:"transfer_expiry,omitempty"`
}

// issuer はセッショントークンの発行者。
const issuer = "rdsds-gateway"

// contextKeyBearerClaims はGinコンテキストに検証済みクレームを格納するためのキー。
const contextKeyBearerClaims = "bearer_claims"

// GenerateJWT はセッションクレームからJWTトークンを生成する。
// gatewayがOAuth2ログイン完了後に呼び出す。
func GenerateJWT(secret string, ttl time.Duration, claims SessionClaims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.Email,
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    issuer,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はJWTトークンを検証し、クレームを返す。
func ParseJWT(secret, tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, fmt.Errorf("JWTトークンの検証に失敗: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("JWTトークンが無効です")
	}
	return claims, nil
}

// BearerSession はAuthorizationヘッダーのBearerトークンを検証するGinミドルウェアを返す。
// トークンがない、または無効な場合でもリクエストは拒否しない。
// 認可の判断はセッションゲートが行う。
func BearerSession(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || tokenString == "" {
			c.Next()
			return
		}

		claims, err := ParseJWT(secret, tokenString)
		if err != nil {
			logrus.WithError(err).Warnln("Bearerトークンの検証に失敗")
			c.Next()
			return
		}

		c.Set(contextKeyBearerClaims, claims)
		c.Next()
	}
}

// GetBearerClaims はGinコンテキストから検証済みのセッションクレームを取得する。
// BearerSessionミドルウェアが事前に適用されている必要がある。
func GetBearerClaims(c *gin.Context) (*SessionClaims, bool) {
	v, ok := c.Get(contextKeyBearerClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*SessionClaims)
	return claims, ok
}
