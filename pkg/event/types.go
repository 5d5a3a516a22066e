// Package event は通知サービスが外部とやり取りするイベントの形式を定義する。
//
// リソース側のサービスは配信要求をDispatchRequestedイベントとして送り、
// 通知サービスはレンダリング済みのメッセージをMessageSendRequestedイベントとしてメールリレーへ渡す。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeResource は通知のきっかけとなる業務リソース（コース、注文など）を表す。
	AggregateTypeResource AggregateType = "Resource"
	// AggregateTypeDispatch は配信レコードを表す。
	AggregateTypeDispatch AggregateType = "Dispatch"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeDispatchRequested はリソース側から配信（下書き・予約・即時送信）が要求されたことを表す。
	TypeDispatchRequested Type = "DispatchRequested"
	// TypeMessageSendRequested はレンダリング済みメッセージの送信をメールリレーへ依頼することを表す。
	TypeMessageSendRequested Type = "MessageSendRequested"
)

// Event はサービス間でやり取りするイベントの共通エンベロープ。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// Version は同じ対象に対するイベントの順序番号。送信依頼では送信試行の回数を表す。
	Version int64 `json:"version"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// DispatchAction は配信要求の種類。
type DispatchAction string

const (
	// ActionDraft は下書きとして保存する。
	ActionDraft DispatchAction = "draft"
	// ActionSchedule は指定日時に配信する。
	ActionSchedule DispatchAction = "schedule"
	// ActionSend は即時に配信する。
	ActionSend DispatchAction = "send"
)

// DispatchRequestedData はDispatchRequestedイベントのデータ。
type DispatchRequestedData struct {
	// Action は draft, schedule, send のいずれか。
	Action DispatchAction `json:"action"`
	// Recipients は宛先メールアドレス。宛先ごとに配信レコードが作られる。
	Recipients []string `json:"recipients"`
	// ResourceID は対象リソースのID。
	ResourceID string `json:"resource_id"`
	// ResourceName は対象リソース名。
	ResourceName string `json:"resource_name"`
	// BlueprintRef はブループリント名またはID。空の場合はリソース名のオートメーションで解決する。
	BlueprintRef string `json:"blueprint_ref,omitempty"`
	// MailName は組み込みの定型メール名。指定した場合はブループリントより優先する。
	MailName string `json:"mail_name,omitempty"`
	// PlaceValues はプレースホルダ値（ネストしたJSON）。
	PlaceValues json.RawMessage `json:"place_values,omitempty"`
	// Priority は優先度。大きいほど先に送信される。
	Priority int `json:"priority,omitempty"`
	// Tag は同じリソース内で配信をまとめる任意のタグ。
	Tag string `json:"tag,omitempty"`
	// ScheduleTime は予約配信日時。Actionがscheduleの場合のみ使用する。
	ScheduleTime *time.Time `json:"schedule_time,omitempty"`
	// Cc はCC宛先。
	Cc []string `json:"cc,omitempty"`
	// Bcc はBCC宛先。
	Bcc []string `json:"bcc,omitempty"`
}

// MessageSendRequestedData はMessageSendRequestedイベントのデータ。
type MessageSendRequestedData struct {
	// Transport は使用するトランスポート名。
	Transport string `json:"transport"`
	// From は差出人アドレス。
	From string `json:"from"`
	// To は宛先アドレス。
	To string `json:"to"`
	// Cc はCC宛先。
	Cc []string `json:"cc,omitempty"`
	// Bcc はBCC宛先。
	Bcc []string `json:"bcc,omitempty"`
	// Subject はレンダリング済みの件名。
	Subject string `json:"subject"`
	// Body はレンダリング済みの本文。
	Body string `json:"body"`
	// TrackingPixelURL は開封計測用の画像URL。空の場合は計測しない。
	TrackingPixelURL string `json:"tracking_pixel_url,omitempty"`
}
