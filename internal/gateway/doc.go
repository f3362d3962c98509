// Package gateway は転送サービスのHTTPサーバーを提供する。
//
// 転送の作成・一覧・取得・キャンセルのエンドポイントと、認証プロバイダによる
// ログイン・ログアウトを担当する。転送操作はtransfer.Proxyに委譲し、
// セッションの解決はsession.Gateが行う。ログインしたユーザーと転送操作の
// 監査イベントはSQLiteに保存する。
package gateway
