package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/rdsds/pkg/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubProvider はIDトークン文字列からIdentityを引くテスト用の認証プロバイダ。
type stubProvider struct {
	name       string
	identities map[string]Identity
}

func (p *stubProvider) Name() string {
	return p.name
}

func (p *stubProvider) AuthorizeRedirect(*gin.Context) error {
	return errors.New("not implemented")
}

func (p *stubProvider) AuthorizeAccessToken(*gin.Context) (*Credential, error) {
	return nil, errors.New("not implemented")
}

func (p *stubProvider) ParseIDToken(_ context.Context, raw string) (*Identity, error) {
	id, ok := p.identities[raw]
	if !ok {
		return nil, errors.New("invalid id token")
	}
	return &id, nil
}

// stubSource は固定の資格情報を返すテスト用のCredentialSource。
type stubSource struct {
	cred Credential
	ok   bool
}

func (s stubSource) Load(*gin.Context) (Credential, bool) { return s.cred, s.ok }

// stubClient はBackendClientのテスト用実装。
type stubClient struct{ token string }

func (stubClient) Create(context.Context, map[string]any) (int, any, error) {
	return 0, nil, nil
}

func (stubClient) Get(context.Context, string) (int, any, error) {
	return 0, nil, nil
}

func (stubClient) List(context.Context, int) (int, any, error) {
	return 0, nil, nil
}

func (stubClient) Cancel(context.Context, string) (int, any, error) {
	return 0, nil, nil
}

func newStubRegistry() *Registry {
	return NewRegistry(&stubProvider{
		name: "globus",
		identities: map[string]Identity{
			"valid":    {Subject: "sub-1", Email: "alice@example.org", Name: "Alice"},
			"no-email": {Subject: "sub-2"},
		},
	})
}

func stubFactories() map[string]ClientFactory {
	return map[string]ClientFactory{
		"globus": func(cred Credential) (BackendClient, error) {
			if cred.AccessToken == "" {
				return nil, errors.New("transfer token is missing")
			}
			return stubClient{token: cred.AccessToken}, nil
		},
	}
}

func newTestContext() *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/transfer/", nil)
	return c
}

// TestGateResolve はGate.Resolveを検証する。
func TestGateResolve(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sources   []CredentialSource
		wantOK    bool
		wantEmail string
	}{
		{
			name:    "資格情報がない場合はセッションなし",
			sources: []CredentialSource{stubSource{}},
		},
		{
			name:      "有効なIDトークンの場合はセッションを返す",
			sources:   []CredentialSource{stubSource{cred: Credential{Provider: "globus", IDToken: "valid", AccessToken: "tok"}, ok: true}},
			wantOK:    true,
			wantEmail: "alice@example.org",
		},
		{
			name:    "emailクレームがない場合はセッションなし",
			sources: []CredentialSource{stubSource{cred: Credential{Provider: "globus", IDToken: "no-email"}, ok: true}},
		},
		{
			name:    "IDトークンが無効な場合はセッションなし",
			sources: []CredentialSource{stubSource{cred: Credential{Provider: "globus", IDToken: "forged"}, ok: true}},
		},
		{
			name:    "未登録のプロバイダの場合はセッションなし",
			sources: []CredentialSource{stubSource{cred: Credential{Provider: "google", IDToken: "valid"}, ok: true}},
		},
		{
			name: "先頭のソースが無効な場合は次のソースを参照する",
			sources: []CredentialSource{
				stubSource{cred: Credential{Provider: "globus", IDToken: "forged"}, ok: true},
				stubSource{cred: Credential{Provider: "globus", IDToken: "valid"}, ok: true},
			},
			wantOK:    true,
			wantEmail: "alice@example.org",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			gate := NewGate(newStubRegistry(), stubFactories(), tt.sources...)
			s, ok := gate.Resolve(newTestContext())

			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Nil(t, s)
				return
			}
			require.NotNil(t, s)
			assert.Equal(t, tt.wantEmail, s.Email())
		})
	}
}

// TestGateClientHandle はGate.ClientHandleを検証する。
func TestGateClientHandle(t *testing.T) {
	t.Parallel()

	gate := NewGate(newStubRegistry(), stubFactories())

	t.Run("セッションの資格情報でクライアントを生成すること", func(t *testing.T) {
		t.Parallel()

		client, err := gate.ClientHandle(&Session{Credential: Credential{AccessToken: "tok"}}, "globus")
		require.NoError(t, err)
		assert.Equal(t, stubClient{token: "tok"}, client)
	})

	t.Run("セッションがnilの場合はErrNoSession", func(t *testing.T) {
		t.Parallel()

		_, err := gate.ClientHandle(nil, "globus")
		assert.ErrorIs(t, err, ErrNoSession)
	})

	t.Run("未知の転送種別はErrUnknownVariant", func(t *testing.T) {
		t.Parallel()

		_, err := gate.ClientHandle(&Session{}, "s3")
		assert.ErrorIs(t, err, ErrUnknownVariant)
	})

	t.Run("ファクトリが失敗した場合はErrNoSession", func(t *testing.T) {
		t.Parallel()

		_, err := gate.ClientHandle(&Session{}, "globus")
		assert.ErrorIs(t, err, ErrNoSession)
	})
}

// TestCookieSource はCookieセッションへの保存と読み出しを検証する。
func TestCookieSource(t *testing.T) {
	t.Parallel()

	router := gin.New()
	router.Use(sessions.Sessions("rdsds", cookie.NewStore([]byte("cookie-secret"))))
	router.POST("/login", func(c *gin.Context) {
		err := SaveCredential(c, Credential{Provider: "globus", IDToken: "valid", AccessToken: "tok"})
		require.NoError(t, err)
		c.Status(http.StatusOK)
	})
	router.POST("/logout", func(c *gin.Context) {
		require.NoError(t, ClearCredential(c))
		c.Status(http.StatusOK)
	})
	router.GET("/whoami", func(c *gin.Context) {
		cred, ok := CookieSource{}.Load(c)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"found": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"found": true, "token": cred.AccessToken})
	})

	do := func(method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for _, ck := range cookies {
			req.AddCookie(ck)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := do(http.MethodGet, "/whoami", nil)
	assert.JSONEq(t, `{"found":false}`, w.Body.String())

	login := do(http.MethodPost, "/login", nil)
	cookies := login.Result().Cookies()
	require.NotEmpty(t, cookies)

	w = do(http.MethodGet, "/whoami", cookies)
	assert.JSONEq(t, `{"found":true,"token":"tok"}`, w.Body.String())

	logout := do(http.MethodPost, "/logout", cookies)
	w = do(http.MethodGet, "/whoami", logout.Result().Cookies())
	assert.JSONEq(t, `{"found":false}`, w.Body.String())
}

// TestBearerSource はBearerクレームからの資格情報の読み出しを検証する。
func TestBearerSource(t *testing.T) {
	t.Parallel()

	const secret = "bearer-secret"
	router := gin.New()
	router.Use(middleware.BearerSession(secret))
	router.GET("/whoami", func(c *gin.Context) {
		cred, ok := BearerSource{}.Load(c)
		c.JSON(http.StatusOK, gin.H{"found": ok, "provider": cred.Provider, "id": cred.IDToken, "token": cred.AccessToken,
			"expiry": cred.Expiry.Unix()})
	})

	expiry := time.Unix(1700000000, 0)
	token, err := middleware.GenerateJWT(secret, time.Hour, middleware.SessionClaims{
		Email:          "alice@example.org",
		Provider:       "globus",
		IDToken:        "valid",
		TransferToken:  "tok",
		TransferExpiry: jwt.NewNumericDate(expiry),
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"found":true,"provider":"globus","id":"valid","token":"tok","expiry":1700000000}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"found":false,"provider":"","id":"","token":"","expiry":-62135596800}`, w.Body.String())
}

// TestRegistry はRegistryを検証する。
func TestRegistry(t *testing.T) {
	t.Parallel()

	r := NewRegistry(&stubProvider{name: "globus"}, &stubProvider{name: "elixir"})
	assert.Equal(t, []string{"elixir", "globus"}, r.Names())

	p, err := r.Get("globus")
	require.NoError(t, err)
	assert.Equal(t, "globus", p.Name())

	_, err = r.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
