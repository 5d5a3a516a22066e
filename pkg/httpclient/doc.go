// Package httpclient は外部HTTPサービスとJSONでやり取りするクライアントを提供する。
//
// 通知サービスでは、レンダリング済みメッセージをメールリレーへ渡す送信処理で使用する。
// タイムアウト、認証ヘッダー、リクエストIDの伝播を共通化する。
package httpclient
