package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/notifly/internal/notification/db"
)

// Range は日時の範囲条件。nilの端は無制限。
type Range struct {
	From *time.Time
	To   *time.Time
}

func (r Range) toDB() db.TimeRange {
	var out db.TimeRange
	if r.From != nil {
		out.From = db.FormatTime(*r.From)
	}
	if r.To != nil {
		out.To = db.FormatTime(*r.To)
	}
	return out
}

// Query は配信レコード一覧の検索条件。
type Query struct {
	RecipientEmail string
	ResourceName   string
	ResourceID     string
	Tag            string
	Status         Status
	IsOpened       *bool
	Created        Range
	Scheduled      Range
	Opened         Range
	Sent           Range
	// SortBy は created_at, schedule_time, status, recipient_email, updated_at のいずれか。
	SortBy   string
	SortDesc bool
	Page     int
	Limit    int
}

// Page は配信レコード一覧の1ページ分。
type Page struct {
	Items []*Record `json:"items"`
	Total int64     `json:"total"`
	Page  int       `json:"page"`
	Limit int       `json:"limit"`
}

// List は条件に一致する配信レコードをページ単位で返す。
func (l *Ledger) List(ctx context.Context, q Query) (*Page, error) {
	page, limit := q.Page, q.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	filter := q.filter()
	filter.Limit = int64(limit)
	filter.Offset = int64((page - 1) * limit)

	rows, total, err := l.queries.ListDispatchRecords(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("配信レコード一覧の取得に失敗: %w", err)
	}
	items, err := recordsFromRows(rows)
	if err != nil {
		return nil, err
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// FindByResourceID はリソース（tagが空でなければタグも）に属する配信レコードを作成日時順にすべて返す。
func (l *Ledger) FindByResourceID(ctx context.Context, resourceID, tag string) ([]*Record, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource_idは必須です", ErrInvalid)
	}
	rows, _, err := l.queries.ListDispatchRecords(ctx, db.DispatchRecordFilter{
		ResourceID: resourceID,
		Tag:        tag,
		SortBy:     "created_at",
		Limit:      -1,
	})
	if err != nil {
		return nil, fmt.Errorf("配信レコードの取得に失敗: %w", err)
	}
	return recordsFromRows(rows)
}

func (q Query) filter() db.DispatchRecordFilter {
	return db.DispatchRecordFilter{
		RecipientEmail: q.RecipientEmail,
		ResourceName:   q.ResourceName,
		ResourceID:     q.ResourceID,
		Tag:            q.Tag,
		Status:         string(q.Status),
		IsOpened:       q.IsOpened,
		Created:        q.Created.toDB(),
		Scheduled:      q.Scheduled.toDB(),
		Opened:         q.Opened.toDB(),
		Sent:           q.Sent.toDB(),
		SortBy:         q.SortBy,
		SortDesc:       q.SortDesc,
	}
}
