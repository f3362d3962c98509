package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeTransfer は転送リクエストを表す。
	AggregateTypeTransfer AggregateType = "Transfer"
	// AggregateTypeUser はユーザーを表す。
	AggregateTypeUser AggregateType = "User"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeTransferSubmitted は転送リクエストがバックエンドに送信されたことを表す。
	TypeTransferSubmitted Type = "TransferSubmitted"
	// TypeTransferCancelled は転送のキャンセルがバックエンドに送信されたことを表す。
	TypeTransferCancelled Type = "TransferCancelled"
	// TypeUserLoggedIn はユーザーがログインしたことを表す。
	TypeUserLoggedIn Type = "UserLoggedIn"
)

// Event は監査ログに記録される不変のイベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子（転送IDまたはユーザーのメールアドレス）。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Actor は操作を行ったユーザーのメールアドレス。
	Actor string `json:"actor"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// TransferSubmittedData はTransferSubmittedイベントのデータ。
type TransferSubmittedData struct {
	// TransferType は転送の種類（例: GLOBUS）。
	TransferType string `json:"transfer_type"`
	// Status はバックエンドが返したHTTPステータスコード。
	Status int `json:"status"`
}

// TransferCancelledData はTransferCancelledイベントのデータ。
type TransferCancelledData struct {
	// BackendID はプレフィックスを除去した後のバックエンド側の転送ID。
	BackendID string `json:"backend_id"`
	// Status はバックエンドが返したHTTPステータスコード。
	Status int `json:"status"`
}

// UserLoggedInData はUserLoggedInイベントのデータ。
type UserLoggedInData struct {
	// Provider はログインに使用した認証プロバイダ名。
	Provider string `json:"provider"`
}
