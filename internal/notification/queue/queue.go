// Package queue は配信レコードをワーカーへ受け渡す優先度付きキューを提供する。
//
// ジョブIDは常に配信レコードのIDであり、同じIDのジョブはキュー内に高々1件しか存在しない。
// 優先度の高いジョブから取り出され、同じ優先度ではキュー投入順（FIFO）になる。
// キューは配信状態を持たない。状態の正はledgerにある。
package queue

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDuplicate は同じIDのジョブが既にキューにあることを表す。
	ErrDuplicate = errors.New("同じIDのジョブが既にキューにあります")
	// ErrClosed はキューが閉じられていることを表す。
	ErrClosed = errors.New("キューは閉じられています")
)

// 優先度の範囲。Redisキューのスコアで順序を保てる範囲に合わせている。
const (
	MinPriority = -1000
	MaxPriority = 1000
)

// ValidPriority は優先度が受け付け可能な範囲にある場合にtrueを返す。
func ValidPriority(p int) bool {
	return p >= MinPriority && p <= MaxPriority
}

// Job はキューに投入されるジョブ。
type Job struct {
	// ID は配信レコードのID。
	ID string
	// Priority は優先度。大きいほど先に取り出される。MinPriority以上MaxPriority以下。
	Priority int
	// Payload は任意の付随データ。キューは中身を解釈しない。
	Payload []byte
	// EnqueuedAt はキューに投入された日時。
	EnqueuedAt time.Time
}

// Queue は優先度付きジョブキュー。
type Queue interface {
	// Enqueue はジョブを投入する。同じIDのジョブが残っている場合はErrDuplicateを返す。
	Enqueue(ctx context.Context, job Job) error
	// Dequeue は最も優先度の高いジョブを取り出す。ジョブが無い間はブロックする。
	// ctxが終了した場合はctx.Err()を、キューが閉じられた場合はErrClosedを返す。
	Dequeue(ctx context.Context) (Job, error)
	// Len はキュー内のジョブ数を返す。
	Len(ctx context.Context) (int, error)
	// Close はキューを閉じ、待機中のDequeueを解放する。
	Close() error
}
