// Package transfer はセッションで保護された転送プロキシを提供する。
//
// 転送の作成・一覧・取得・キャンセルの各操作は、セッションゲートで呼び出し元を
// 確認してからバックエンドを呼び出す。バックエンドが返したステータスコードは
// そのままレスポンスのステータスとして使い、ボディはJSONで表現できる形に正規化する。
//
// 転送種別はディスパッチテーブルで管理する。新しいバックエンドを追加するときは
// テーブルに1行追加し、session.Gateに同名のクライアントファクトリを登録する。
package transfer
