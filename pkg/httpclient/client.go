package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client は外部サービス呼び出し用のHTTPクライアント。
// 非2xxのレスポンスもエラーにせず、ステータスコードとボディの組として返す。
type Client struct {
	// rest は内部で使用するrestyクライアント。
	rest *resty.Client
	// baseURL は接続先サービスのベースURL。
	baseURL string
}

// Option はClientの設定を変更する関数。
type Option func(*Client)

// WithTimeout はリクエストのタイムアウトを設定する。0の場合はタイムアウトしない。
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.rest.SetTimeout(d)
		}
	}
}

// WithAuthToken は全リクエストに付与するBearerトークンを設定する。
func WithAuthToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.rest.SetAuthToken(token)
		}
	}
}

// New は新しいHTTPクライアントを生成する。
// baseURLには接続先のベースURL（例: "https://transfer.api.globus.org/v0.10"）を指定する。
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		rest: resty.New().
			SetBaseURL(baseURL).
			SetHeader("Accept", "application/json"),
		baseURL: baseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Response はバックエンドが返したステータスコードとデコード済みボディの組。
type Response struct {
	// Status はHTTPステータスコード。
	Status int
	// Body はJSONとしてデコードしたボディ。JSONでない場合は文字列、空の場合はnil。
	Body any
}

// GetJSON は指定パスにGETリクエストを送信する。
func (c *Client) GetJSON(ctx context.Context, path string, query map[string]string) (*Response, error) {
	req := c.newRequest(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	return c.execute(req, resty.MethodGet, path)
}

// PostJSON は指定パスにJSONボディでPOSTリクエストを送信する。
func (c *Client) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	req := c.newRequest(ctx).SetHeader("Content-Type", "application/json")
	if body != nil {
		req.SetBody(body)
	}
	return c.execute(req, resty.MethodPost, path)
}

func (c *Client) newRequest(ctx context.Context) *resty.Request {
	req := c.rest.R().SetContext(ctx)
	// コンテキストからリクエストIDを伝播する
	if id := RequestID(ctx); id != "" {
		req.SetHeader(headerKeyRequestID, id)
	}
	return req
}

// execute はリクエストを実行し、レスポンスをResponseに変換する共通処理。
// 通信自体が失敗した場合のみエラーを返す。
func (c *Client) execute(req *resty.Request, method, path string) (*Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの送信に失敗: method=%s, url=%s%s: %w", method, c.baseURL, path, err)
	}

	body, err := decodeBody(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディのデシリアライズに失敗: %w", err)
	}

	return &Response{Status: resp.StatusCode(), Body: body}, nil
}

// decodeBody はレスポンスボディをJSONとしてデコードする。
// 数値はjson.Numberとして保持し、バックエンドの値をそのまま返せるようにする。
func decodeBody(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if !json.Valid(trimmed) {
		return string(raw), nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

// contextKey はコンテキストキーの型。
type contextKey string

// contextKeyRequestID はコンテキストにリクエストIDを格納するためのキー。
const contextKeyRequestID contextKey = "request_id"

// headerKeyRequestID はリクエストIDを伝播するためのHTTPヘッダーキー。
const headerKeyRequestID = "X-Request-ID"

// WithRequestID はコンテキストにリクエストIDを設定する。
// 外部サービス呼び出し時にリクエストIDを伝播するために使用する。
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, contextKeyRequestID, requestID)
}

// RequestID はコンテキストからリクエストIDを取得する。
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(contextKeyRequestID).(string)
	return id
}
