package sender

import (
	"context"
	"fmt"

	"github.com/nao1215/notifly/pkg/event"
	"github.com/nao1215/notifly/pkg/httpclient"
	"go.uber.org/zap"
)

// RelayPath はメールリレーの受付パス。
const RelayPath = "/v1/messages"

// RelayHealthPath はメールリレーのヘルスチェックパス。
const RelayHealthPath = "/v1/health"

// RelayHealth はメールリレーのヘルスチェック応答。
type RelayHealth struct {
	Status string `json:"status"`
}

// RelaySender はメッセージをMessageSendRequestedイベントとしてメールリレーへPOSTする。
type RelaySender struct {
	client *httpclient.Client
	logger *zap.Logger
}

// NewRelaySender は新しいRelaySenderを生成する。
func NewRelaySender(client *httpclient.Client, logger *zap.Logger) *RelaySender {
	return &RelaySender{client: client, logger: logger}
}

// Send はメッセージをメールリレーへ送信する。
// リクエストIDには配信レコードのIDを設定し、リレー側で重複を排除できるようにする。
func (s *RelaySender) Send(ctx context.Context, msg Message) error {
	attempt := msg.Attempt
	if attempt < 1 {
		attempt = 1
	}
	ev, err := event.New(msg.RecordID, event.AggregateTypeDispatch, event.TypeMessageSendRequested, int64(attempt),
		event.MessageSendRequestedData{
			Transport:        msg.Transport.Name,
			From:             msg.Transport.FromAddress,
			To:               msg.To,
			Cc:               msg.Cc,
			Bcc:              msg.Bcc,
			Subject:          msg.Subject,
			Body:             msg.Body,
			TrackingPixelURL: msg.TrackingPixelURL,
		})
	if err != nil {
		return err
	}

	if err := s.client.PostJSON(httpclient.WithRequestID(ctx, msg.RecordID), RelayPath, ev, nil); err != nil {
		return fmt.Errorf("メールリレーへの送信に失敗: %w", err)
	}
	s.logger.Debug("メールリレーへ送信しました",
		zap.String("record_id", msg.RecordID),
		zap.String("event_id", ev.ID),
	)
	return nil
}

// Ping はメールリレーのヘルスチェックを呼び出し、応答できる状態かを確認する。
func (s *RelaySender) Ping(ctx context.Context) error {
	var health RelayHealth
	if err := s.client.GetJSON(ctx, RelayHealthPath, &health); err != nil {
		return fmt.Errorf("メールリレーのヘルスチェックに失敗: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("メールリレーが利用できません: status=%q", health.Status)
	}
	return nil
}
