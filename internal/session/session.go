package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

var (
	// ErrNoSession は有効なセッションがないことを表す。
	ErrNoSession = errors.New("no usable session")
	// ErrUnknownVariant は転送種別に対応するクライアントファクトリがないことを表す。
	ErrUnknownVariant = errors.New("unknown transfer variant")
	// ErrUnknownProvider は認証プロバイダが登録されていないことを表す。
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrStateMismatch はOAuthのstateが一致しないことを表す。
	ErrStateMismatch = errors.New("oauth state mismatch")
)

// Credential はログイン時に保存される資格情報。
type Credential struct {
	// Provider は資格情報を発行した認証プロバイダ名。
	Provider string `json:"provider"`
	// IDToken は認証プロバイダが発行したIDトークン。
	IDToken string `json:"id_token"`
	// AccessToken は転送バックエンド用のアクセストークン。
	AccessToken string `json:"access_token"`
	// Expiry はAccessTokenの有効期限。ゼロ値は不明を表す。
	Expiry time.Time `json:"expiry,omitzero"`
}

// Identity はIDトークンから取り出した呼び出し元の情報。
type Identity struct {
	Subject string
	Email   string
	Name    string
}

// Session は検証済みの呼び出し元と資格情報の組。リクエストの間だけ有効。
type Session struct {
	Identity   Identity
	Credential Credential
}

// Email は呼び出し元のメールアドレスを返す。
func (s *Session) Email() string {
	if s == nil {
		return ""
	}
	return s.Identity.Email
}

// BackendClient は呼び出し元の資格情報に紐づいた転送バックエンドのクライアント。
// すべての操作はバックエンドのステータスコードとボディの組を返す。
type BackendClient interface {
	Create(ctx context.Context, payload map[string]any) (int, any, error)
	Get(ctx context.Context, id string) (int, any, error)
	List(ctx context.Context, limit int) (int, any, error)
	Cancel(ctx context.Context, id string) (int, any, error)
}

// ClientFactory は資格情報からBackendClientを生成する。
type ClientFactory func(cred Credential) (BackendClient, error)

// Gate はリクエストのセッションを解決し、バックエンドクライアントを払い出す。
// Gate自体は状態を変更しないため、並行するリクエストで共有できる。
type Gate struct {
	registry  *Registry
	sources   []CredentialSource
	factories map[string]ClientFactory
}

// NewGate は新しいGateを生成する。sourcesは先頭から順に参照される。
func NewGate(registry *Registry, factories map[string]ClientFactory, sources ...CredentialSource) *Gate {
	return &Gate{
		registry:  registry,
		sources:   sources,
		factories: factories,
	}
}

// Resolve はリクエストに紐づく有効なセッションを返す。
// 資格情報がない、IDトークンの検証に失敗した、emailクレームがない場合はfalseを返す。
// セッションがないことは正常な結果でありエラーではない。
func (g *Gate) Resolve(c *gin.Context) (*Session, bool) {
	for _, src := range g.sources {
		cred, ok := src.Load(c)
		if !ok {
			continue
		}

		idp, err := g.registry.Get(cred.Provider)
		if err != nil {
			logrus.WithError(err).WithField("provider", cred.Provider).Warnln("資格情報のプロバイダが登録されていません")
			continue
		}

		identity, err := idp.ParseIDToken(c.Request.Context(), cred.IDToken)
		if err != nil {
			logrus.WithError(err).WithField("provider", cred.Provider).Warnln("IDトークンの検証に失敗")
			continue
		}
		if identity.Email == "" {
			logrus.WithField("provider", cred.Provider).Debugln("IDトークンにemailクレームがありません")
			continue
		}

		logrus.WithField("email", identity.Email).Infoln("Authorized User")
		return &Session{Identity: *identity, Credential: cred}, true
	}
	return nil, false
}

// ClientHandle はセッションの資格情報で認可されたバックエンドクライアントを生成する。
// variantは転送種別の名前（例: "globus"）。
func (g *Gate) ClientHandle(s *Session, variant string) (BackendClient, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	factory, ok := g.factories[variant]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownVariant, variant)
	}
	client, err := factory(s.Credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	return client, nil
}
