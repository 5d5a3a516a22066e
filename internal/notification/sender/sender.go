package sender

import (
	"context"
	"errors"
)

var (
	// ErrNotFound はトランスポートが存在しないことを表す。
	ErrNotFound = errors.New("トランスポートが見つかりません")
	// ErrConflict はトランスポート名が重複していることを表す。
	ErrConflict = errors.New("トランスポート名が既に存在します")
	// ErrInvalid は入力が不正であることを表す。
	ErrInvalid = errors.New("トランスポートの入力が不正です")
)

// Message は送信するメッセージ。
type Message struct {
	// RecordID は配信レコードのID。送信先での重複排除キーとして使う。
	RecordID string
	// Attempt は同じレコードに対する何回目の送信か（1始まり）。
	Attempt          int
	To               string
	Cc               []string
	Bcc              []string
	Subject          string
	Body             string
	Transport        Transport
	TrackingPixelURL string
}

// Sender はメッセージを送信する。
// ctxのキャンセルやタイムアウトを尊重し、送信できなかった場合はエラーを返す。
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
