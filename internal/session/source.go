package session

import (
	"encoding/json"
	"fmt"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/rdsds/pkg/middleware"
)

// CredentialSource はリクエストから保存済みの資格情報を取り出す。
type CredentialSource interface {
	Load(c *gin.Context) (Credential, bool)
}

// sessionKeyToken はCookieセッションに資格情報を保存するキー。
const sessionKeyToken = "token"

// CookieSource はgin-contrib/sessionsのCookieセッションから資格情報を読む。
// sessions.Sessionsミドルウェアが事前に適用されている必要がある。
type CookieSource struct{}

// Load はCookieセッションに保存された資格情報を返す。
func (CookieSource) Load(c *gin.Context) (Credential, bool) {
	raw, ok := sessions.Default(c).Get(sessionKeyToken).(string)
	if !ok || raw == "" {
		return Credential{}, false
	}

	var cred Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		logrus.WithError(err).Warnln("Cookieセッションの資格情報のデコードに失敗")
		return Credential{}, false
	}
	return cred, true
}

// SaveCredential は資格情報をCookieセッションに保存する。
func SaveCredential(c *gin.Context, cred Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("資格情報のシリアライズに失敗: %w", err)
	}
	s := sessions.Default(c)
	s.Set(sessionKeyToken, string(raw))
	if err := s.Save(); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// ClearCredential はCookieセッションから資格情報を削除する。
func ClearCredential(c *gin.Context) error {
	s := sessions.Default(c)
	s.Delete(sessionKeyToken)
	if err := s.Save(); err != nil {
		return fmt.Errorf("セッションの保存に失敗: %w", err)
	}
	return nil
}

// BearerSource はBearerセッショントークンのクレームから資格情報を読む。
// middleware.BearerSessionが事前に適用されている必要がある。
type BearerSource struct{}

// Load は検証済みのBearerクレームを資格情報に変換して返す。
func (BearerSource) Load(c *gin.Context) (Credential, bool) {
	claims, ok := middleware.GetBearerClaims(c)
	if !ok {
		return Credential{}, false
	}
	cred := Credential{
		Provider:    claims.Provider,
		IDToken:     claims.IDToken,
		AccessToken: claims.TransferToken,
	}
	if claims.TransferExpiry != nil {
		cred.Expiry = claims.TransferExpiry.Time
	}
	return cred, true
}
