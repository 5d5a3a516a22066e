package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nao1215/notifly/internal/notification/db"
	"github.com/nao1215/notifly/internal/notification/template"
)

// Record は配信レコード。宛先1件への1回の配信試行を表す。
type Record struct {
	ID             string `json:"id"`
	RecipientEmail string `json:"recipient_email"`
	ResourceID     string `json:"resource_id,omitempty"`
	ResourceName   string `json:"resource_name,omitempty"`
	Tag            string `json:"tag,omitempty"`
	Status         Status `json:"status"`
	IsOpened       bool   `json:"is_opened"`
	IsClicked      bool   `json:"is_clicked"`
	// ScheduleTime は予約配信日時。予約でない場合はnil。
	ScheduleTime *time.Time  `json:"schedule_time,omitempty"`
	OpenTimes    []time.Time `json:"open_times"`
	ClickTimes   []time.Time `json:"click_times"`
	SentTimes    []time.Time `json:"sent_times"`
	Cc           []string    `json:"cc"`
	Bcc          []string    `json:"bcc"`
	// BlueprintRef はブループリント名またはID。
	BlueprintRef string `json:"blueprint_ref,omitempty"`
	// PlaceValues はプレースホルダ値。
	PlaceValues  *template.Value `json:"place_values"`
	Priority     int             `json:"priority"`
	IsPredefined bool            `json:"is_predefined"`
	// Transport は送信に使うトランスポート名。空の場合はデフォルト。
	Transport       string    `json:"transport,omitempty"`
	RenderedSubject *string   `json:"rendered_subject,omitempty"`
	RenderedBody    *string   `json:"rendered_body,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasRendered はレンダリング済みの件名と本文を保持している場合にtrueを返す。
func (r *Record) HasRendered() bool {
	return r.RenderedSubject != nil && r.RenderedBody != nil
}

// Rendered はレンダリング済みの件名と本文を返す。
func (r *Record) Rendered() template.Rendered {
	var out template.Rendered
	if r.RenderedSubject != nil {
		out.Subject = *r.RenderedSubject
	}
	if r.RenderedBody != nil {
		out.Body = *r.RenderedBody
	}
	return out
}

// NewRecord は配信レコード作成の入力。
type NewRecord struct {
	RecipientEmail string
	ResourceID     string
	ResourceName   string
	Tag            string
	// Status は初期状態。draft, scheduled, queued のいずれか。
	Status       Status
	ScheduleTime *time.Time
	Cc           []string
	Bcc          []string
	BlueprintRef string
	PlaceValues  *template.Value
	Priority     int
	IsPredefined bool
	Transport    string
	// Rendered は作成時点でレンダリング済みの内容。定型メッセージで使用する。
	Rendered *template.Rendered
}

func (n NewRecord) validate() error {
	if n.RecipientEmail == "" {
		return fmt.Errorf("%w: recipient_emailは必須です", ErrInvalid)
	}
	switch n.Status {
	case StatusDraft, StatusQueued:
	case StatusScheduled:
		if n.ScheduleTime == nil {
			return fmt.Errorf("%w: 予約配信にはschedule_timeが必要です", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: 初期状態に %q は指定できません", ErrInvalid, n.Status)
	}
	if n.IsPredefined && n.Rendered == nil {
		return fmt.Errorf("%w: 定型メッセージには件名と本文が必要です", ErrInvalid)
	}
	return nil
}

func (n NewRecord) params(id string, now time.Time) (db.CreateDispatchRecordParams, error) {
	cc, err := encodeStrings(n.Cc)
	if err != nil {
		return db.CreateDispatchRecordParams{}, err
	}
	bcc, err := encodeStrings(n.Bcc)
	if err != nil {
		return db.CreateDispatchRecordParams{}, err
	}
	values := n.PlaceValues
	if values == nil {
		values = template.Map(nil)
	}
	placeValues, err := json.Marshal(values)
	if err != nil {
		return db.CreateDispatchRecordParams{}, fmt.Errorf("プレースホルダ値のエンコードに失敗: %w", err)
	}

	p := db.CreateDispatchRecordParams{
		ID:             id,
		RecipientEmail: n.RecipientEmail,
		ResourceID:     n.ResourceID,
		ResourceName:   n.ResourceName,
		Tag:            n.Tag,
		Status:         string(n.Status),
		ScheduleTime:   db.NullTime(n.ScheduleTime),
		Cc:             cc,
		Bcc:            bcc,
		BlueprintRef:   n.BlueprintRef,
		PlaceValues:    string(placeValues),
		Priority:       int64(n.Priority),
		Transport:      n.Transport,
		CreatedAt:      db.FormatTime(now),
	}
	if n.IsPredefined {
		p.IsPredefined = 1
	}
	if n.Rendered != nil {
		p.RenderedSubject = sql.NullString{String: n.Rendered.Subject, Valid: true}
		p.RenderedBody = sql.NullString{String: n.Rendered.Body, Valid: true}
	}
	return p, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("配列のエンコードに失敗: %w", err)
	}
	return string(b), nil
}

func decodeTimes(raw string) ([]time.Time, error) {
	var texts []string
	if err := json.Unmarshal([]byte(raw), &texts); err != nil {
		return nil, err
	}
	times := make([]time.Time, 0, len(texts))
	for _, s := range texts {
		t, err := db.ParseTime(s)
		if err != nil {
			return nil, err
		}
		times = append(times, t)
	}
	return times, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func recordFromRow(row db.DispatchRecord) (*Record, error) {
	r := &Record{
		ID:              row.ID,
		RecipientEmail:  row.RecipientEmail,
		ResourceID:      row.ResourceID,
		ResourceName:    row.ResourceName,
		Tag:             row.Tag,
		Status:          Status(row.Status),
		IsOpened:        row.IsOpened != 0,
		IsClicked:       row.IsClicked != 0,
		BlueprintRef:    row.BlueprintRef,
		Priority:        int(row.Priority),
		IsPredefined:    row.IsPredefined != 0,
		Transport:       row.Transport,
		RenderedSubject: nullString(row.RenderedSubject),
		RenderedBody:    nullString(row.RenderedBody),
	}

	var err error
	if row.ScheduleTime.Valid {
		t, err := db.ParseTime(row.ScheduleTime.String)
		if err != nil {
			return nil, fmt.Errorf("予約日時のパースに失敗: %w", err)
		}
		r.ScheduleTime = &t
	}
	if r.OpenTimes, err = decodeTimes(row.OpenTimes); err != nil {
		return nil, fmt.Errorf("開封日時のデコードに失敗: %w", err)
	}
	if r.ClickTimes, err = decodeTimes(row.ClickTimes); err != nil {
		return nil, fmt.Errorf("クリック日時のデコードに失敗: %w", err)
	}
	if r.SentTimes, err = decodeTimes(row.SentTimes); err != nil {
		return nil, fmt.Errorf("送信日時のデコードに失敗: %w", err)
	}
	if err = json.Unmarshal([]byte(row.Cc), &r.Cc); err != nil {
		return nil, fmt.Errorf("ccのデコードに失敗: %w", err)
	}
	if err = json.Unmarshal([]byte(row.Bcc), &r.Bcc); err != nil {
		return nil, fmt.Errorf("bccのデコードに失敗: %w", err)
	}
	r.PlaceValues = new(template.Value)
	if err = json.Unmarshal([]byte(row.PlaceValues), r.PlaceValues); err != nil {
		return nil, fmt.Errorf("プレースホルダ値のデコードに失敗: %w", err)
	}
	if r.CreatedAt, err = db.ParseTime(row.CreatedAt); err != nil {
		return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
	}
	if r.UpdatedAt, err = db.ParseTime(row.UpdatedAt); err != nil {
		return nil, fmt.Errorf("更新日時のパースに失敗: %w", err)
	}
	return r, nil
}

func recordsFromRows(rows []db.DispatchRecord) ([]*Record, error) {
	out := make([]*Record, 0, len(rows))
	for _, row := range rows {
		r, err := recordFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
