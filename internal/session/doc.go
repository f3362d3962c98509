// Package session はリクエストごとのセッションを検証するセッションゲートを提供する。
//
// CookieセッションまたはBearerトークンから資格情報を取り出し、
// 認証プロバイダでIDトークンを検証して呼び出し元を特定する。
// 転送バックエンドのクライアントを生成できるのはGate.ClientHandleだけである。
package session
