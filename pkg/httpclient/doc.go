// Package httpclient は外部サービスとのHTTP通信を行うクライアントを提供する。
//
// 転送バックエンドなど外部APIの呼び出しに使用する。
// バックエンドのステータスコードを唯一の正とするため、非2xxのレスポンスは
// エラーにせず、ステータスコードとボディの組としてそのまま返す。
package httpclient
