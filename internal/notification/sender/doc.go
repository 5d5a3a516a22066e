// Package sender はレンダリング済みメッセージの送信を担う。
//
// Senderは送信手段の抽象で、メールリレーへイベントを送るRelaySenderと
// ログに出力するだけのLogSenderを提供する。
// 差出人の情報はtransportsテーブルで管理し、TransportConfigが
// 明示的なReloadでのみ更新されるキャッシュとして保持する。
package sender
