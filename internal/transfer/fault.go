package transfer

import "net/http"

// UnauthorizedMessage はセッションがない場合に返す固定のメッセージ。
const UnauthorizedMessage = "The requester is not authorized to perform this action, Please login through /globus/login"

// NoAuthorizationMarker はセッションがない場合に一覧が返す要素の値。
const NoAuthorizationMarker = "No authorization available"

// Fault はエラー時のレスポンスボディ。
type Fault struct {
	StatusCode int    `json:"status_code"`
	Msg        string `json:"msg"`
}

// Result は転送操作の結果。Statusはそのままレスポンスのステータスになる。
// Bodyがnilの場合はボディなしで応答する。
type Result struct {
	Status int
	Body   any
}

// NewFault は指定したステータスとメッセージのエラー結果を返す。
func NewFault(status int, msg string) Result {
	return Result{Status: status, Body: Fault{StatusCode: status, Msg: msg}}
}

// Unauthorized は認可エラーの結果を返す。
func Unauthorized() Result {
	return NewFault(http.StatusForbidden, UnauthorizedMessage)
}

// routingMiss は未対応の転送種別またはIDに対する空の結果を返す。
func routingMiss() Result {
	return Result{Status: http.StatusNoContent}
}

// IsEmpty はボディのない結果かどうかを返す。
func (r Result) IsEmpty() bool {
	return r.Body == nil
}
