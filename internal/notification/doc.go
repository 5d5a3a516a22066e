// Package notification は通知配信サービスの組み立てとHTTP APIを提供する。
//
// ブループリント（メッセージテンプレート）とオートメーションの管理、
// 下書き・予約・即時配信の受け付け、配信履歴の参照、開封とクリックの計測を
// HTTPで公開する。配信レコードは優先度付きキューを経由して送信ワーカーが処理し、
// 予約配信はスケジューラが期日に投入する。
package notification
