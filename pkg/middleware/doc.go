// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// Bearerセッショントークンの発行と検証、リクエストログ、パニックリカバリ、
// CORS設定など、gatewayで共通して使用するミドルウェアを含む。
package middleware
