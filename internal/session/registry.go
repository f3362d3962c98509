package session

import (
	"context"
	"fmt"
	"sort"

	"github.com/gin-gonic/gin"
)

// IdentityProvider はOAuth/OIDCの認証プロバイダ。
type IdentityProvider interface {
	// Name はプロバイダ名を返す。
	Name() string
	// AuthorizeRedirect は認可エンドポイントへリダイレクトする。
	AuthorizeRedirect(c *gin.Context) error
	// AuthorizeAccessToken はコールバックの認可コードをトークンに交換し、資格情報を返す。
	AuthorizeAccessToken(c *gin.Context) (*Credential, error)
	// ParseIDToken はIDトークンを検証し、呼び出し元の情報を返す。
	ParseIDToken(ctx context.Context, rawIDToken string) (*Identity, error)
}

// Registry はプロバイダ名をキーに認証プロバイダを保持する。
// 起動時に登録した後は読み取り専用として扱う。
type Registry struct {
	providers map[string]IdentityProvider
}

// NewRegistry は指定したプロバイダを登録したRegistryを生成する。
func NewRegistry(providers ...IdentityProvider) *Registry {
	r := &Registry{providers: make(map[string]IdentityProvider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register はプロバイダを登録する。同名のプロバイダは上書きされる。
func (r *Registry) Register(p IdentityProvider) {
	r.providers[p.Name()] = p
}

// Get はプロバイダ名に対応するプロバイダを返す。
func (r *Registry) Get(name string) (IdentityProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names は登録済みのプロバイダ名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
