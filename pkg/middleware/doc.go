// Package middleware は通知サービスのHTTP APIで使用するGinミドルウェアを提供する。
//
// 管理APIのJWT認証、zapによるアクセスログ、パニックリカバリ、
// 管理画面からのアクセスを許可するCORS設定を含む。
package middleware
