package transfer

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/nao1215/rdsds/internal/session"
	"github.com/nao1215/rdsds/pkg/event"
)

const (
	// DefaultListCount は一覧で取得する件数の既定値。
	DefaultListCount = 10
	// ListCountParam は一覧の件数を指定するクエリパラメータ名。
	ListCountParam = "globus_item_count"
)

// Gate はリクエストのセッションを解決し、バックエンドクライアントを払い出す。
// session.Gateが実装する。
type Gate interface {
	Resolve(c *gin.Context) (*session.Session, bool)
	ClientHandle(s *session.Session, variant string) (session.BackendClient, error)
}

// Auditor はバックエンドに到達した操作を記録する。
type Auditor interface {
	Record(ctx context.Context, e *event.Event) error
}

// Proxy は転送操作をセッションゲート経由でバックエンドに中継する。
type Proxy struct {
	gate    Gate
	auditor Auditor
}

// NewProxy はProxyを生成する。auditorがnilの場合は監査ログを記録しない。
func NewProxy(gate Gate, auditor Auditor) *Proxy {
	return &Proxy{gate: gate, auditor: auditor}
}

// Create は転送リクエストをバックエンドに送信する。
// 未対応の転送種別はセッションを確認せずに空の結果を返す。
func (p *Proxy) Create(c *gin.Context, req *Request) Result {
	v, ok := Lookup(req.Type)
	if !ok {
		logrus.WithField("transfer_type", req.Type).Infoln("未対応の転送種別")
		return routingMiss()
	}

	s, client, fault := p.authorize(c, v)
	if fault != nil {
		return *fault
	}

	status, body, err := client.Create(c.Request.Context(), req.Payload)
	if err != nil {
		return backendUnavailable(v, "create", err)
	}

	result := p.respond(status, body)
	var transferID string
	if id, ok := taskID(body); ok {
		transferID = v.TransferID(id)
	}
	p.record(c.Request.Context(), transferID, event.TypeTransferSubmitted, s, event.TransferSubmittedData{
		TransferType: string(v.Type),
		Status:       status,
	})
	return result
}

// List は各転送種別の転送一覧を返す。
// セッションがない場合も拒否せず、認可がないことを示す要素を返す。
// 件数はクエリパラメータglobus_item_countで指定し、省略時は10件。
func (p *Proxy) List(c *gin.Context) Result {
	s, ok := p.gate.Resolve(c)
	count := DefaultListCount
	if ok {
		n, err := listCount(c)
		if err != nil {
			logrus.WithError(err).WithField(ListCountParam, c.Query(ListCountParam)).
				Warnln("件数の指定が不正なため既定値を使用")
		} else {
			count = n
		}
	}

	items := make([]any, 0, len(dispatch))
	for _, v := range dispatch {
		if !ok {
			items = append(items, gin.H{v.Name: NoAuthorizationMarker})
			continue
		}

		client, err := p.gate.ClientHandle(s, v.Name)
		if err != nil {
			logrus.WithError(err).WithField("variant", v.Name).Warnln("バックエンドクライアントの生成に失敗")
			items = append(items, gin.H{v.Name: NoAuthorizationMarker})
			continue
		}

		status, body, err := client.List(c.Request.Context(), count)
		if err != nil {
			fault := backendUnavailable(v, "list", err)
			items = append(items, gin.H{v.Name: fault.Body, "status_code": fault.Status})
			continue
		}

		normalized, err := Normalize(body)
		if err != nil {
			return serializationFault(err)
		}
		items = append(items, gin.H{v.Name: normalized, "status_code": status})
	}
	return Result{Status: http.StatusOK, Body: items}
}

// Get は転送の状態を返す。
// プレフィックスで始まらないIDはセッションを確認せずに空の結果を返す。
func (p *Proxy) Get(c *gin.Context, transferID string) Result {
	v, backendID, ok := Route(transferID)
	if !ok {
		return routingMiss()
	}

	_, client, fault := p.authorize(c, v)
	if fault != nil {
		return *fault
	}

	status, body, err := client.Get(c.Request.Context(), backendID)
	if err != nil {
		return backendUnavailable(v, "get", err)
	}
	return p.respond(status, body)
}

// Cancel は転送をキャンセルする。
// プレフィックスで始まらないIDはセッションを確認せずに空の結果を返す。
func (p *Proxy) Cancel(c *gin.Context, transferID string) Result {
	v, backendID, ok := Route(transferID)
	if !ok {
		return routingMiss()
	}

	s, client, fault := p.authorize(c, v)
	if fault != nil {
		return *fault
	}

	status, body, err := client.Cancel(c.Request.Context(), backendID)
	if err != nil {
		return backendUnavailable(v, "cancel", err)
	}

	result := p.respond(status, body)
	p.record(c.Request.Context(), transferID, event.TypeTransferCancelled, s, event.TransferCancelledData{
		BackendID: backendID,
		Status:    status,
	})
	return result
}

// authorize はセッションを解決し、Variant用のバックエンドクライアントを返す。
// 失敗した場合は認可エラーの結果を返す。
func (p *Proxy) authorize(c *gin.Context, v Variant) (*session.Session, session.BackendClient, *Result) {
	s, ok := p.gate.Resolve(c)
	if !ok {
		fault := Unauthorized()
		return nil, nil, &fault
	}
	client, err := p.gate.ClientHandle(s, v.Name)
	if err != nil {
		logrus.WithError(err).WithField("variant", v.Name).Warnln("バックエンドクライアントの生成に失敗")
		fault := Unauthorized()
		return nil, nil, &fault
	}
	return s, client, nil
}

// respond はバックエンドのステータスと正規化したボディから結果を組み立てる。
func (p *Proxy) respond(status int, body any) Result {
	normalized, err := Normalize(body)
	if err != nil {
		return serializationFault(err)
	}
	return Result{Status: status, Body: normalized}
}

// record は監査イベントを記録する。記録の失敗は操作の結果に影響しない。
func (p *Proxy) record(ctx context.Context, transferID string, t event.Type, s *session.Session, data any) {
	if p.auditor == nil {
		return
	}
	e, err := event.New(transferID, event.AggregateTypeTransfer, t, s.Email(), data)
	if err != nil {
		logrus.WithError(err).Errorln("監査イベントの生成に失敗")
		return
	}
	if err := p.auditor.Record(ctx, e); err != nil {
		logrus.WithError(err).WithField("event_type", t).Errorln("監査イベントの記録に失敗")
	}
}

// listCount はクエリパラメータから一覧の件数を読み取る。
func listCount(c *gin.Context) (int, error) {
	raw, ok := c.GetQuery(ListCountParam)
	if !ok {
		return DefaultListCount, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", ListCountParam)
	}
	return n, nil
}

func backendUnavailable(v Variant, op string, err error) Result {
	logrus.WithError(err).WithFields(logrus.Fields{
		"variant":   v.Name,
		"operation": op,
	}).Errorln("バックエンドの呼び出しに失敗")
	return NewFault(http.StatusBadGateway, "The transfer backend could not be reached.")
}

func serializationFault(err error) Result {
	logrus.WithError(err).Errorln("レスポンスの正規化に失敗")
	return NewFault(http.StatusInternalServerError, "An unexpected error occurred.")
}

// taskID はバックエンドのレスポンスから転送タスクのIDを取り出す。
func taskID(body any) (string, bool) {
	m, ok := body.(map[string]any)
	if !ok {
		return "", false
	}
	id, ok := m["task_id"].(string)
	return id, ok && id != ""
}
