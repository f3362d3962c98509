// Package globus はGlobus Transfer APIのクライアントを提供する。
//
// 呼び出し元ユーザーの転送用アクセストークンに紐づいたクライアントとして、
// 転送の作成・状態取得・一覧取得・キャンセルを行う。すべての操作は
// バックエンドのステータスコードとボディの組を返し、非2xxでもエラーにしない。
package globus
