// Package ledger は配信レコードとその状態遷移を管理する。
//
// 配信レコードは宛先1件ごとの配信試行を表し、配信状態の唯一の正となる。
// 状態遷移はすべて「現在の状態が想定どおりの場合のみ更新する」条件付きUPDATEで行うため、
// スケジューラとワーカーが同じレコードを並行して操作しても遷移グラフから外れることはない。
package ledger
