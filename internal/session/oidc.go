package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// sessionKeyState はCookieセッションにOAuthのstateを保存するキー。
const sessionKeyState = "oauth_state"

// OIDCConfig はOIDCプロバイダの設定。
type OIDCConfig struct {
	// Name はプロバイダ名（例: "globus"）。
	Name string
	// Issuer はOIDCのIssuer URL。ディスカバリに使用する。
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// ResourceServer はバックエンド用トークンを発行するリソースサーバー名。
	// トークンレスポンスのother_tokensからこのリソースサーバーのトークンを選ぶ。
	ResourceServer string
}

// OIDCProvider はoauth2とgo-oidcによるIdentityProviderの実装。
type OIDCProvider struct {
	name           string
	oauth          *oauth2.Config
	verifier       *oidc.IDTokenVerifier
	resourceServer string
}

var _ IdentityProvider = (*OIDCProvider)(nil)

// NewOIDCProvider はIssuerのディスカバリを行い、OIDCProviderを生成する。
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, fmt.Errorf("OIDCプロバイダのディスカバリに失敗: issuer=%s: %w", cfg.Issuer, err)
	}

	return newOIDCProvider(cfg, provider.Endpoint(), provider.Verifier(&oidc.Config{ClientID: cfg.ClientID})), nil
}

func newOIDCProvider(cfg OIDCConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *OIDCProvider {
	return &OIDCProvider{
		name: cfg.Name,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint:     endpoint,
		},
		verifier:       verifier,
		resourceServer: cfg.ResourceServer,
	}
}

// Name はプロバイダ名を返す。
func (p *OIDCProvider) Name() string {
	return p.name
}

// AuthorizeRedirect はstateをCookieセッションに保存し、認可エンドポイントへリダイレクトする。
func (p *OIDCProvider) AuthorizeRedirect(c *gin.Context) error {
	state := uuid.New().String()
	s := sessions.Default(c)
	s.Set(sessionKeyState, state)
	if err := s.Save(); err != nil {
		return fmt.Errorf("stateの保存に失敗: %w", err)
	}

	c.Redirect(http.StatusFound, p.oauth.AuthCodeURL(state))
	return nil
}

// AuthorizeAccessToken はstateを検証し、認可コードをトークンに交換して資格情報を返す。
// stateは一度使うと破棄される。
func (p *OIDCProvider) AuthorizeAccessToken(c *gin.Context) (*Credential, error) {
	s := sessions.Default(c)
	expected, _ := s.Get(sessionKeyState).(string)
	s.Delete(sessionKeyState)
	if err := s.Save(); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗: %w", err)
	}

	if expected == "" || c.Query("state") != expected {
		return nil, ErrStateMismatch
	}
	if e := c.Query("error"); e != "" {
		return nil, fmt.Errorf("認可が拒否されました: %s: %s", e, c.Query("error_description"))
	}

	token, err := p.oauth.Exchange(c.Request.Context(), c.Query("code"))
	if err != nil {
		return nil, fmt.Errorf("認可コードの交換に失敗: %w", err)
	}
	return p.credentialFromToken(token)
}

// ParseIDToken はIDトークンの署名とクレームを検証し、呼び出し元の情報を返す。
func (p *OIDCProvider) ParseIDToken(ctx context.Context, rawIDToken string) (*Identity, error) {
	if rawIDToken == "" {
		return nil, errors.New("IDトークンが空です")
	}
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("IDトークンの検証に失敗: %w", err)
	}

	var claims struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("IDトークンのクレームのデコードに失敗: %w", err)
	}

	return &Identity{
		Subject: idToken.Subject,
		Email:   claims.Email,
		Name:    claims.Name,
	}, nil
}

// credentialFromToken はトークンレスポンスから資格情報を組み立てる。
// other_tokensにresourceServer向けのトークンがあればそれをバックエンド用に使い、
// なければトップレベルのアクセストークンを使う。
func (p *OIDCProvider) credentialFromToken(token *oauth2.Token) (*Credential, error) {
	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, errors.New("トークンレスポンスにid_tokenがありません")
	}

	cred := &Credential{
		Provider:    p.name,
		IDToken:     idToken,
		AccessToken: token.AccessToken,
		Expiry:      token.Expiry,
	}

	others, _ := token.Extra("other_tokens").([]any)
	for _, o := range others {
		m, ok := o.(map[string]any)
		if !ok || m["resource_server"] != p.resourceServer {
			continue
		}
		access, _ := m["access_token"].(string)
		if access == "" {
			continue
		}
		cred.AccessToken = access
		cred.Expiry = time.Time{}
		if secs, ok := m["expires_in"].(float64); ok && secs > 0 {
			cred.Expiry = time.Now().Add(time.Duration(secs) * time.Second)
		}
		break
	}
	return cred, nil
}
