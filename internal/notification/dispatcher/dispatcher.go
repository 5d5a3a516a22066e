// Package dispatcher は配信要求（下書き・予約・即時送信）を受け付け、
// 配信レコードの作成とキュー投入を行う。
//
// 配信時のエラー（レンダリングや送信の失敗）は呼び出し元へ返さず、
// レコードの状態としてledgerに記録される。呼び出し元に返るのは入力の不正と永続化の失敗のみ。
package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/nao1215/notifly/internal/notification/blueprint"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/queue"
	"github.com/nao1215/notifly/internal/notification/template"
	"github.com/nao1215/notifly/pkg/event"
	"go.uber.org/zap"
)

// Renderer は配信レコードの件名と本文をレンダリングする。
type Renderer interface {
	Render(ctx context.Context, req blueprint.RenderRequest) (template.Rendered, error)
	RenderMail(name string, values *template.Value) (template.Rendered, error)
}

// Request は配信要求。宛先ごとに1件の配信レコードが作られる。
type Request struct {
	Recipients   []string
	ResourceID   string
	ResourceName string
	Tag          string
	BlueprintRef string
	// MailName は組み込みの定型メール名。指定した場合は受付時にレンダリングし、定型メッセージとして保存する。
	MailName     string
	PlaceValues  *template.Value
	Priority     int
	Cc           []string
	Bcc          []string
	Transport    string
	// ScheduleTime は予約配信日時。Scheduleでのみ使う。
	ScheduleTime *time.Time
	// Subject とBody は定型メッセージの内容。IsPredefinedがtrueの場合は必須。
	Subject      string
	Body         string
	IsPredefined bool
}

// Dispatcher は配信要求をledgerとキューへ橋渡しする。
type Dispatcher struct {
	ledger   *ledger.Ledger
	queue    queue.Queue
	renderer Renderer
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// New は新しいDispatcherを生成する。
func New(l *ledger.Ledger, q queue.Queue, renderer Renderer, m *metrics.Metrics, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		ledger:   l,
		queue:    q,
		renderer: renderer,
		metrics:  m,
		logger:   logger,
	}
}

// Draft は下書きとしてレコードを作成する。送信は行わない。
func (d *Dispatcher) Draft(ctx context.Context, req Request) ([]*ledger.Record, error) {
	inputs, err := d.inputs(req, ledger.StatusDraft, nil)
	if err != nil {
		return nil, err
	}
	return d.ledger.CreateBatch(ctx, inputs)
}

// Schedule は予約配信としてレコードを作成する。送信はスケジューラが期日到来時に行う。
func (d *Dispatcher) Schedule(ctx context.Context, req Request) ([]*ledger.Record, error) {
	if req.ScheduleTime == nil {
		return nil, fmt.Errorf("%w: schedule_timeは必須です", ledger.ErrInvalid)
	}
	inputs, err := d.inputs(req, ledger.StatusScheduled, nil)
	if err != nil {
		return nil, err
	}
	return d.ledger.CreateBatch(ctx, inputs)
}

// Send は即時配信としてレコードを作成し、キューへ投入する。
// ブループリントを使う場合はここでレンダリングを試み、成功すれば結果をレコードに保存する。
// 失敗した場合はワーカーが改めてレンダリングし、結果をレコードの状態として記録する。
func (d *Dispatcher) Send(ctx context.Context, req Request) ([]*ledger.Record, error) {
	var rendered *template.Rendered
	if !req.IsPredefined && req.MailName == "" {
		r, err := d.renderer.Render(ctx, blueprint.RenderRequest{
			BlueprintRef: req.BlueprintRef,
			ResourceName: req.ResourceName,
			Values:       req.PlaceValues,
		})
		if err == nil {
			rendered = &r
		} else {
			d.logger.Debug("送信前のレンダリングに失敗しました", zap.Error(err))
		}
	}

	inputs, err := d.inputs(req, ledger.StatusQueued, rendered)
	if err != nil {
		return nil, err
	}
	records, err := d.ledger.CreateBatch(ctx, inputs)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, records)
	return records, nil
}

// SendDrafts はリソース（tagが空でなければタグも）の下書きをすべてキューへ投入する。
func (d *Dispatcher) SendDrafts(ctx context.Context, resourceID, tag string) ([]*ledger.Record, error) {
	records, err := d.ledger.QueueDrafts(ctx, resourceID, tag)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, records)
	return records, nil
}

// Resend は終了状態のレコードを同じIDのまま再投入する。
func (d *Dispatcher) Resend(ctx context.Context, id string) (*ledger.Record, error) {
	rec, err := d.ledger.Resend(ctx, id)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, []*ledger.Record{rec})
	return rec, nil
}

// Cancel はレコードをキャンセルする。キュー内のジョブはワーカーが取り出した時点で破棄される。
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*ledger.Record, error) {
	return d.ledger.Cancel(ctx, id)
}

// Pause はレコードを一時停止する。
func (d *Dispatcher) Pause(ctx context.Context, id string) (*ledger.Record, error) {
	return d.ledger.Pause(ctx, id)
}

// Resume は一時停止中のレコードを再開してキューへ投入する。
func (d *Dispatcher) Resume(ctx context.Context, id string) (*ledger.Record, error) {
	rec, err := d.ledger.Resume(ctx, id)
	if err != nil {
		return nil, err
	}
	d.enqueue(ctx, []*ledger.Record{rec})
	return rec, nil
}

// Preview はレコードを返す。未レンダリングでブループリントを解決できる場合は
// レンダリング結果を付けて返す。レコード自体は変更しない。
func (d *Dispatcher) Preview(ctx context.Context, id string) (*ledger.Record, error) {
	rec, err := d.ledger.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.HasRendered() {
		return rec, nil
	}

	rendered, err := d.renderer.Render(ctx, blueprint.RenderRequest{
		BlueprintRef: rec.BlueprintRef,
		ResourceName: rec.ResourceName,
		Values:       rec.PlaceValues,
	})
	if err != nil {
		d.logger.Debug("プレビューのレンダリングに失敗しました", zap.String("record_id", id), zap.Error(err))
		return rec, nil
	}
	rec.RenderedSubject = &rendered.Subject
	rec.RenderedBody = &rendered.Body
	return rec, nil
}

// HandleEvent はリソース側から届いたDispatchRequestedイベントを処理する。
func (d *Dispatcher) HandleEvent(ctx context.Context, ev *event.Event) ([]*ledger.Record, error) {
	if err := event.Expect(ev, event.AggregateTypeResource, event.TypeDispatchRequested); err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}
	data, err := event.DecodeData[event.DispatchRequestedData](ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}

	values, err := DecodeValues(data.PlaceValues)
	if err != nil {
		return nil, err
	}
	resourceID := data.ResourceID
	if resourceID == "" {
		resourceID = ev.AggregateID
	}
	req := Request{
		Recipients:   data.Recipients,
		ResourceID:   resourceID,
		ResourceName: data.ResourceName,
		Tag:          data.Tag,
		BlueprintRef: data.BlueprintRef,
		MailName:     data.MailName,
		PlaceValues:  values,
		Priority:     data.Priority,
		Cc:           data.Cc,
		Bcc:          data.Bcc,
		ScheduleTime: data.ScheduleTime,
	}

	d.logger.Info("配信要求イベントを受信しました",
		zap.String("event_id", ev.ID),
		zap.String("action", string(data.Action)),
		zap.Int("recipients", len(data.Recipients)),
	)

	switch data.Action {
	case event.ActionDraft:
		return d.Draft(ctx, req)
	case event.ActionSchedule:
		return d.Schedule(ctx, req)
	case event.ActionSend:
		return d.Send(ctx, req)
	default:
		return nil, fmt.Errorf("%w: 不明なactionです: %q", ledger.ErrInvalid, data.Action)
	}
}

// DecodeValues はJSONのプレースホルダ値をtemplate.Valueに変換する。空の場合は空のマップを返す。
func DecodeValues(raw json.RawMessage) (*template.Value, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return template.Map(nil), nil
	}
	var v template.Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: place_valuesが不正です: %v", ledger.ErrInvalid, err)
	}
	if v.Kind() != template.KindMap {
		return nil, fmt.Errorf("%w: place_valuesはオブジェクトである必要があります", ledger.ErrInvalid)
	}
	return &v, nil
}

// inputs は宛先ごとのレコード作成入力を組み立てる。
func (d *Dispatcher) inputs(req Request, status ledger.Status, rendered *template.Rendered) ([]ledger.NewRecord, error) {
	recipients, err := normalizeAddresses(req.Recipients)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: 宛先がありません", ledger.ErrInvalid)
	}
	if !queue.ValidPriority(req.Priority) {
		return nil, fmt.Errorf("%w: priorityは%dから%dの範囲で指定してください", ledger.ErrInvalid, queue.MinPriority, queue.MaxPriority)
	}
	cc, err := normalizeAddresses(req.Cc)
	if err != nil {
		return nil, err
	}
	bcc, err := normalizeAddresses(req.Bcc)
	if err != nil {
		return nil, err
	}
	predefined := req.IsPredefined
	switch {
	case req.MailName != "":
		r, err := d.renderMail(req.MailName, req.PlaceValues)
		if err != nil {
			return nil, err
		}
		rendered, predefined = &r, true
	case req.IsPredefined:
		if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Body) == "" {
			return nil, fmt.Errorf("%w: 定型メッセージには件名と本文が必要です", ledger.ErrInvalid)
		}
		rendered = &template.Rendered{Subject: req.Subject, Body: req.Body}
	}

	var scheduleTime *time.Time
	if status == ledger.StatusScheduled {
		scheduleTime = req.ScheduleTime
	}

	inputs := make([]ledger.NewRecord, 0, len(recipients))
	for _, to := range recipients {
		inputs = append(inputs, ledger.NewRecord{
			RecipientEmail: to,
			ResourceID:     req.ResourceID,
			ResourceName:   req.ResourceName,
			Tag:            req.Tag,
			Status:         status,
			ScheduleTime:   scheduleTime,
			Cc:             cc,
			Bcc:            bcc,
			BlueprintRef:   req.BlueprintRef,
			PlaceValues:    req.PlaceValues,
			Priority:       req.Priority,
			IsPredefined:   predefined,
			Transport:      req.Transport,
			Rendered:       rendered,
		})
	}
	return inputs, nil
}

// renderMail は組み込みの定型メールをレンダリングする。
// 未知のメール名と値の不足は入力の不正として扱う。
func (d *Dispatcher) renderMail(name string, values *template.Value) (template.Rendered, error) {
	rendered, err := d.renderer.RenderMail(name, values)
	if err == nil {
		return rendered, nil
	}
	var missing *template.MissingPlaceholdersError
	if errors.Is(err, blueprint.ErrNotFound) || errors.As(err, &missing) || errors.Is(err, template.ErrCircularReference) {
		return template.Rendered{}, fmt.Errorf("%w: mail_name %q: %v", ledger.ErrInvalid, name, err)
	}
	return template.Rendered{}, err
}

// enqueue はキュー投入済みのレコードをキューへ渡す。
// 失敗したレコードはQUEUEDのまま残り、ワーカーの起動時復元で再投入される。
func (d *Dispatcher) enqueue(ctx context.Context, records []*ledger.Record) {
	for _, rec := range records {
		err := d.queue.Enqueue(ctx, queue.Job{ID: rec.ID, Priority: rec.Priority})
		if err == nil || errors.Is(err, queue.ErrDuplicate) {
			continue
		}
		d.metrics.IncEnqueueFailures()
		d.logger.Error("キューへの投入に失敗しました",
			zap.String("record_id", rec.ID),
			zap.Error(err),
		)
	}
}

// normalizeAddresses はメールアドレスを検証し、前後の空白を除いて返す。
func normalizeAddresses(addrs []string) ([]string, error) {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		parsed, err := mail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("%w: メールアドレスが不正です: %q", ledger.ErrInvalid, a)
		}
		out = append(out, parsed.Address)
	}
	return out, nil
}
