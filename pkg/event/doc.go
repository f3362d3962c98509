// Package event は監査ログに記録するイベントの型と生成関数を提供する。
//
// 転送の送信・キャンセル、ユーザーのログインといった操作を
// 不変のイベントとして表現し、gatewayのストアに永続化する。
package event
