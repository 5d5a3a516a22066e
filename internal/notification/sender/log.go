package sender

import (
	"context"

	"go.uber.org/zap"
)

// LogSender はメッセージを送信せずログに出力する。
// メールリレーが設定されていない開発環境で使う。
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender は新しいLogSenderを生成する。
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send はメッセージの内容をログに出力する。
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("メッセージを送信しました",
		zap.String("record_id", msg.RecordID),
		zap.String("transport", msg.Transport.Name),
		zap.String("from", msg.Transport.FromAddress),
		zap.String("to", msg.To),
		zap.Strings("cc", msg.Cc),
		zap.Strings("bcc", msg.Bcc),
		zap.String("subject", msg.Subject),
		zap.Int("body_length", len(msg.Body)),
	)
	return nil
}
