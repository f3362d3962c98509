package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"

	"github.com/nao1215/rdsds/internal/config"
	"github.com/nao1215/rdsds/internal/session"
	"github.com/nao1215/rdsds/internal/transfer"
	"github.com/nao1215/rdsds/pkg/globus"
	"github.com/nao1215/rdsds/pkg/httpclient"
	"github.com/nao1215/rdsds/pkg/middleware"
)

// sessionCookieName はCookieセッションの名前。
const sessionCookieName = "rdsds_session"

// Server は転送サービスのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// addr はサーバーのリッスンアドレス。
	addr string
	// secret はBearerセッショントークンの署名鍵。
	secret string
	// sessionTTL はBearerセッショントークンの有効期間。
	sessionTTL time.Duration
	store      *Store
	registry   *session.Registry
	gate       *session.Gate
	proxy      *transfer.Proxy
}

// NewServer は設定からサーバーを生成する。
// データベースを開き、Globus AuthのOIDCディスカバリを行う。
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	store, err := OpenStore(ctx, cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	provider, err := session.NewOIDCProvider(ctx, session.OIDCConfig{
		Name:           "globus",
		Issuer:         cfg.Globus.Issuer,
		ClientID:       cfg.Globus.ClientID,
		ClientSecret:   cfg.Globus.ClientSecret,
		RedirectURL:    cfg.Globus.RedirectURL,
		Scopes:         cfg.Globus.Scopes,
		ResourceServer: globus.TransferResourceServer,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return newServer(cfg, store, session.NewRegistry(provider)), nil
}

// newServer は依存関係を受け取ってサーバーを組み立てる。
func newServer(cfg *config.Config, store *Store, registry *session.Registry) *Server {
	gate := session.NewGate(registry, map[string]session.ClientFactory{
		"globus": globusClientFactory(cfg.Globus),
	}, session.CookieSource{}, session.BearerSource{})

	cookieStore := cookie.NewStore([]byte(cfg.Server.Secret))
	cookieStore.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.Server.SessionTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(sessions.Sessions(sessionCookieName, cookieStore))
	router.Use(middleware.BearerSession(cfg.Server.Secret))

	s := &Server{
		router:     router,
		addr:       cfg.Server.Addr(),
		secret:     cfg.Server.Secret,
		sessionTTL: cfg.Server.SessionTTL,
		store:      store,
		registry:   registry,
		gate:       gate,
		proxy:      transfer.NewProxy(gate, store),
	}
	s.setupRoutes()
	return s
}

// Run はHTTPサーバーを起動し、ctxがキャンセルされるとグレースフルに停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTPサーバーの停止に失敗: %w", err)
	}
	return nil
}

// Close はサーバーが保持するリソースを解放する。
func (s *Server) Close() error {
	return s.store.Close()
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// 転送操作。認可はハンドラ内でセッションゲートが判断する
	tr := s.router.Group("/transfer")
	{
		tr.POST("", s.handleCreateTransfer())
		tr.GET("/", s.handleListTransfers())
		tr.GET("/:transfer_id", s.handleGetTransfer())
		tr.DELETE("/:transfer_id", s.handleCancelTransfer())
	}

	// 認証プロバイダごとのログイン・コールバック・ログアウト
	for _, name := range s.registry.Names() {
		g := s.router.Group("/" + name)
		g.GET("/login", s.handleLogin(name))
		g.GET("/auth", s.handleAuth(name))
		g.GET("/logout", s.handleLogout(name))
	}

	s.router.GET("/me", s.handleGetCurrentUser())
	s.router.GET("/audit/events", s.handleListAuditEvents())

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "transfer"})
	})
}

// globusClientFactory はGlobus Transfer APIクライアントのファクトリを返す。
func globusClientFactory(cfg config.GlobusConfig) session.ClientFactory {
	return func(cred session.Credential) (session.BackendClient, error) {
		if cred.AccessToken == "" {
			return nil, errors.New("転送用アクセストークンがありません")
		}
		if !cred.Expiry.IsZero() && time.Now().After(cred.Expiry) {
			return nil, fmt.Errorf("転送用アクセストークンの有効期限切れ: %s", cred.Expiry.Format(time.RFC3339))
		}
		return globus.NewClient(cfg.TransferURL, cred.AccessToken, httpclient.WithTimeout(cfg.Timeout)), nil
	}
}
