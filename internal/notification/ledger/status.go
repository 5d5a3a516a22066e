package ledger

import (
	"errors"
	"fmt"
)

// Status は配信レコードの状態。
type Status string

const (
	// StatusDraft は下書き。明示的な送信操作でキューに入る。
	StatusDraft Status = "draft"
	// StatusScheduled は予約済み。予約日時を過ぎるとスケジューラがキューに入れる。
	StatusScheduled Status = "scheduled"
	// StatusQueued はキュー投入済み。
	StatusQueued Status = "queued"
	// StatusProcessing はワーカーが処理中。
	StatusProcessing Status = "processing"
	// StatusSent は旧形式の送信済み状態。新たに設定されることはない。
	StatusSent Status = "sent"
	// StatusFailed は送信失敗。
	StatusFailed Status = "failed"
	// StatusCancelled はキャンセル済み。
	StatusCancelled Status = "cancelled"
	// StatusCompleted は送信完了。
	StatusCompleted Status = "completed"
	// StatusPaused は一時停止中。
	StatusPaused Status = "paused"
	// StatusNotFound はブループリントまたはプレースホルダ値が見つからなかった。
	StatusNotFound Status = "not_found"
)

// AllStatuses は全ての状態。
var AllStatuses = []Status{
	StatusDraft, StatusScheduled, StatusQueued, StatusProcessing, StatusSent,
	StatusFailed, StatusCancelled, StatusCompleted, StatusPaused, StatusNotFound,
}

// ParseStatus は文字列を状態に変換する。
func ParseStatus(s string) (Status, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: 不明な状態 %q", ErrInvalid, s)
}

// edges は状態遷移グラフ。キーが遷移元、値が遷移先。
var edges = map[Status][]Status{
	StatusDraft:      {StatusQueued, StatusCancelled, StatusPaused},
	StatusScheduled:  {StatusQueued, StatusCancelled, StatusPaused},
	StatusQueued:     {StatusProcessing, StatusCancelled, StatusPaused},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusNotFound, StatusCancelled, StatusPaused},
	StatusPaused:     {StatusQueued, StatusCancelled},
	StatusCompleted:  {StatusQueued},
	StatusFailed:     {StatusQueued},
	StatusNotFound:   {StatusQueued},
	StatusCancelled:  {StatusQueued},
}

// CanTransition は遷移グラフにfromからtoへの辺がある場合にtrueを返す。
func CanTransition(from, to Status) bool {
	for _, next := range edges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// 操作ごとの遷移元。いずれもedgesの部分集合。
var (
	fromSendDraft  = []Status{StatusDraft}
	fromClaim      = []Status{StatusQueued}
	fromProcessing = []Status{StatusProcessing}
	fromResend     = []Status{StatusCompleted, StatusFailed, StatusNotFound, StatusCancelled}
	fromCancel     = []Status{StatusDraft, StatusScheduled, StatusQueued, StatusProcessing, StatusPaused}
	fromPause      = []Status{StatusDraft, StatusScheduled, StatusQueued, StatusProcessing}
	fromResume     = []Status{StatusPaused}
)

// IsTerminal は再送以外の遷移が無い状態である場合にtrueを返す。
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusNotFound, StatusCancelled, StatusSent:
		return true
	default:
		return false
	}
}

var (
	// ErrNotFound は配信レコードが存在しないことを表す。
	ErrNotFound = errors.New("配信レコードが見つかりません")
	// ErrInvalidTransition は現在の状態から要求された状態へ遷移できないことを表す。
	ErrInvalidTransition = errors.New("状態遷移が許可されていません")
	// ErrInvalid は入力値が不正であることを表す。
	ErrInvalid = errors.New("入力値が不正です")
)

// TransitionError は条件付き更新が失敗したときの現在の状態と要求された状態を保持する。
type TransitionError struct {
	ID   string
	From Status
	To   Status
}

// Error はエラーメッセージを返す。
func (e *TransitionError) Error() string {
	return fmt.Sprintf("配信レコード %s は %s から %s へ遷移できません", e.ID, e.From, e.To)
}

// Unwrap はErrInvalidTransitionを返す。
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
