package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/rdsds/internal/session"
	"github.com/nao1215/rdsds/internal/transfer"
	"github.com/nao1215/rdsds/pkg/event"
	"github.com/nao1215/rdsds/pkg/middleware"
)

const (
	// defaultAuditLimit は監査イベント一覧の既定の件数。
	defaultAuditLimit = 50
	// maxAuditLimit は監査イベント一覧の最大件数。
	maxAuditLimit = 500
)

// handleCreateTransfer は転送を作成するハンドラを返す。
func (s *Server) handleCreateTransfer() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, err := transfer.DecodeRequest(c.Request.Body)
		if err != nil {
			writeResult(c, transfer.NewFault(http.StatusUnprocessableEntity, err.Error()))
			return
		}
		writeResult(c, s.proxy.Create(c, req))
	}
}

// handleListTransfers は転送一覧を返すハンドラを返す。
func (s *Server) handleListTransfers() gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResult(c, s.proxy.List(c))
	}
}

// handleGetTransfer は転送の状態を返すハンドラを返す。
func (s *Server) handleGetTransfer() gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResult(c, s.proxy.Get(c, c.Param("transfer_id")))
	}
}

// handleCancelTransfer は転送をキャンセルするハンドラを返す。
func (s *Server) handleCancelTransfer() gin.HandlerFunc {
	return func(c *gin.Context) {
		writeResult(c, s.proxy.Cancel(c, c.Param("transfer_id")))
	}
}

// handleLogin は認証プロバイダへリダイレクトするハンドラを返す。
func (s *Server) handleLogin(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		idp, err := s.registry.Get(provider)
		if err != nil {
			writeResult(c, transfer.NewFault(http.StatusNotFound, err.Error()))
			return
		}
		if err := idp.AuthorizeRedirect(c); err != nil {
			logrus.WithError(err).WithField("provider", provider).Errorln("ログインの開始に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
		}
	}
}

// handleAuth は認証プロバイダからのコールバックを処理するハンドラを返す。
// 資格情報をCookieセッションに保存し、Bearerセッショントークンも発行する。
func (s *Server) handleAuth(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logrus.WithField("provider", provider)

		idp, err := s.registry.Get(provider)
		if err != nil {
			writeResult(c, transfer.NewFault(http.StatusNotFound, err.Error()))
			return
		}

		cred, err := idp.AuthorizeAccessToken(c)
		if err != nil {
			log.WithError(err).Warnln("認可コードの処理に失敗")
			writeResult(c, authFailed(provider))
			return
		}

		identity, err := idp.ParseIDToken(ctx, cred.IDToken)
		if err != nil || identity.Email == "" {
			log.WithError(err).Warnln("IDトークンからユーザーを特定できません")
			writeResult(c, authFailed(provider))
			return
		}

		if err := session.SaveCredential(c, *cred); err != nil {
			log.WithError(err).Errorln("資格情報の保存に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
			return
		}

		if _, err := s.store.UpsertUser(ctx, identity.Email, identity.Name, provider, identity.Subject); err != nil {
			log.WithError(err).Errorln("ユーザーの保存に失敗")
		}
		s.recordLogin(ctx, provider, identity.Email)

		claims := middleware.SessionClaims{
			Email:         identity.Email,
			Provider:      provider,
			IDToken:       cred.IDToken,
			TransferToken: cred.AccessToken,
		}
		if !cred.Expiry.IsZero() {
			claims.TransferExpiry = jwt.NewNumericDate(cred.Expiry)
		}
		token, err := middleware.GenerateJWT(s.secret, s.sessionTTL, claims)
		if err != nil {
			log.WithError(err).Errorln("セッショントークンの生成に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
			return
		}

		log.WithField("email", identity.Email).Infoln("Logged in User")
		c.JSON(http.StatusOK, gin.H{
			"Process":       processName(provider),
			"login_success": true,
			"status":        http.StatusOK,
			"user":          identity.Email,
			"token":         token,
		})
	}
}

// handleLogout はCookieセッションから資格情報を削除するハンドラを返す。
// Bearerセッショントークンは有効期限まで有効なまま残る。
func (s *Server) handleLogout(provider string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := session.ClearCredential(c); err != nil {
			logrus.WithError(err).Errorln("セッションの削除に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"Process":        processName(provider),
			"logout_success": true,
			"status":         http.StatusOK,
		})
	}
}

// handleGetCurrentUser はログイン中のユーザーの情報を返すハンドラを返す。
func (s *Server) handleGetCurrentUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.gate.Resolve(c)
		if !ok {
			writeResult(c, transfer.Unauthorized())
			return
		}

		user, err := s.store.UserByEmail(c.Request.Context(), sess.Email())
		if errors.Is(err, ErrUserNotFound) {
			writeResult(c, transfer.NewFault(http.StatusNotFound, "User not found."))
			return
		}
		if err != nil {
			logrus.WithError(err).Errorln("ユーザーの取得に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// handleListAuditEvents はログイン中のユーザーの監査イベントを返すハンドラを返す。
func (s *Server) handleListAuditEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := s.gate.Resolve(c)
		if !ok {
			writeResult(c, transfer.Unauthorized())
			return
		}

		limit := defaultAuditLimit
		if raw, ok := c.GetQuery("limit"); ok {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxAuditLimit {
				writeResult(c, transfer.NewFault(http.StatusBadRequest, "limit must be an integer between 1 and 500"))
				return
			}
			limit = n
		}

		events, err := s.store.ListEvents(c.Request.Context(), sess.Email(), limit)
		if err != nil {
			logrus.WithError(err).Errorln("監査イベントの取得に失敗")
			writeResult(c, transfer.NewFault(http.StatusInternalServerError, "An unexpected error occurred."))
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": events})
	}
}

// recordLogin はログインの監査イベントを記録する。記録の失敗はログインの結果に影響しない。
func (s *Server) recordLogin(ctx context.Context, provider, email string) {
	e, err := event.New(email, event.AggregateTypeUser, event.TypeUserLoggedIn, email,
		event.UserLoggedInData{Provider: provider})
	if err != nil {
		logrus.WithError(err).Errorln("監査イベントの生成に失敗")
		return
	}
	if err := s.store.Record(ctx, e); err != nil {
		logrus.WithError(err).WithField("provider", provider).Errorln("監査イベントの記録に失敗")
	}
}

// writeResult は転送操作の結果をレスポンスに書き込む。
func writeResult(c *gin.Context, r transfer.Result) {
	if r.IsEmpty() {
		c.Status(r.Status)
		return
	}
	c.JSON(r.Status, r.Body)
}

// authFailed はログインに失敗した場合の結果を返す。
func authFailed(provider string) transfer.Result {
	return transfer.NewFault(http.StatusUnauthorized, "Authorization with "+provider+" failed, Please login through /"+provider+"/login")
}

// processName はログイン応答のProcess欄の値を返す（例: "Globus_Auth"）。
func processName(provider string) string {
	if provider == "" {
		return "Auth"
	}
	return strings.ToUpper(provider[:1]) + provider[1:] + "_Auth"
}
