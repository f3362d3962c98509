package globus

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nao1215/rdsds/pkg/httpclient"
)

const (
	// DefaultTransferURL はGlobus Transfer APIのベースURL。
	DefaultTransferURL = "https://transfer.api.globus.org/v0.10"
	// TransferResourceServer はGlobus AuthのトークンレスポンスにおけるTransfer APIのリソースサーバー名。
	TransferResourceServer = "transfer.api.globus.org"
	// TransferScope はTransfer APIを利用するためのOAuthスコープ。
	TransferScope = "urn:globus:auth:scope:transfer.api.globus.org:all"
)

// Client はユーザーの資格情報に紐づいたGlobus Transfer APIクライアント。
type Client struct {
	// http はBearerトークン付きのHTTPクライアント。
	http *httpclient.Client
}

// NewClient は転送用アクセストークンに紐づいたクライアントを生成する。
func NewClient(baseURL, accessToken string, opts ...httpclient.Option) *Client {
	if baseURL == "" {
		baseURL = DefaultTransferURL
	}
	opts = append([]httpclient.Option{httpclient.WithAuthToken(accessToken)}, opts...)
	return &Client{http: httpclient.New(baseURL, opts...)}
}

// Create は転送タスクを送信する。
// submission_idを取得してから転送ドキュメントをPOSTする。
func (c *Client) Create(ctx context.Context, payload map[string]any) (int, any, error) {
	sub, err := decodeSubmission(payload)
	if err != nil {
		return http.StatusBadRequest, badRequest(err.Error()), nil
	}

	submissionID := sub.SubmissionID
	if submissionID == "" {
		resp, err := c.http.GetJSON(ctx, "/submission_id", nil)
		if err != nil {
			return 0, nil, err
		}
		if resp.Status != http.StatusOK {
			return resp.Status, resp.Body, nil
		}
		id, ok := stringField(resp.Body, "value")
		if !ok {
			return 0, nil, fmt.Errorf("submission_idのレスポンスにvalueがありません: %v", resp.Body)
		}
		submissionID = id
	}

	resp, err := c.http.PostJSON(ctx, "/transfer", sub.document(submissionID))
	if err != nil {
		return 0, nil, err
	}
	return resp.Status, resp.Body, nil
}

// Get は転送タスクの状態を取得する。
func (c *Client) Get(ctx context.Context, taskID string) (int, any, error) {
	resp, err := c.http.GetJSON(ctx, "/task/"+url.PathEscape(taskID), nil)
	if err != nil {
		return 0, nil, err
	}
	return resp.Status, resp.Body, nil
}

// List は転送タスクを新しい順に最大limit件取得する。
func (c *Client) List(ctx context.Context, limit int) (int, any, error) {
	resp, err := c.http.GetJSON(ctx, "/task_list", map[string]string{
		"limit":   strconv.Itoa(limit),
		"orderby": "request_time DESC",
	})
	if err != nil {
		return 0, nil, err
	}
	return resp.Status, resp.Body, nil
}

// Cancel は転送タスクをキャンセルする。
func (c *Client) Cancel(ctx context.Context, taskID string) (int, any, error) {
	resp, err := c.http.PostJSON(ctx, "/task/"+url.PathEscape(taskID)+"/cancel", nil)
	if err != nil {
		return 0, nil, err
	}
	return resp.Status, resp.Body, nil
}

// badRequest はGlobus APIと同じ形式のエラーボディを生成する。
func badRequest(msg string) map[string]any {
	return map[string]any{
		"DATA_TYPE": "result",
		"code":      "ClientError.BadRequest",
		"message":   msg,
	}
}

func stringField(body any, key string) (string, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return "", false
	}
	v, ok := m[key].(string)
	return v, ok && v != ""
}
