package db

import (
	"context"
	"strings"
)

// DispatchRecordSortColumns は一覧の並び替えに指定できるカラム。
var DispatchRecordSortColumns = map[string]string{
	"created_at":      "created_at",
	"schedule_time":   "schedule_time",
	"status":          "status",
	"recipient_email": "recipient_email",
	"updated_at":      "updated_at",
}

// TimeRange は日時の範囲条件。空文字列の端は無制限を表す。
type TimeRange struct {
	From string
	To   string
}

// IsZero は範囲が指定されていない場合にtrueを返す。
func (r TimeRange) IsZero() bool {
	return r.From == "" && r.To == ""
}

// DispatchRecordFilter は配信レコード一覧の検索条件。
type DispatchRecordFilter struct {
	// RecipientEmail は宛先の部分一致（大文字小文字を区別しない）。
	RecipientEmail string
	// ResourceName はリソース名の部分一致。
	ResourceName string
	// ResourceID はリソースIDの完全一致。
	ResourceID string
	// Tag はタグの完全一致。
	Tag string
	// Status は状態の完全一致。
	Status string
	// IsOpened は開封有無。nilの場合は条件にしない。
	IsOpened *bool

	Created   TimeRange
	Scheduled TimeRange
	// Opened はopen_timesのいずれかが範囲内にあるレコードに一致する。
	Opened TimeRange
	// Sent はsent_timesのいずれかが範囲内にあるレコードに一致する。
	Sent TimeRange

	// SortBy はDispatchRecordSortColumnsのキー。未知の値はcreated_atとして扱う。
	SortBy   string
	SortDesc bool
	Limit    int64
	Offset   int64
}

// ListDispatchRecords は条件に一致する配信レコードと総件数を返す。
func (q *Queries) ListDispatchRecords(ctx context.Context, f DispatchRecordFilter) ([]DispatchRecord, int64, error) {
	where, args := f.where()

	var total int64
	if err := q.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dispatch_records"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	column, ok := DispatchRecordSortColumns[f.SortBy]
	if !ok {
		column = "created_at"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := "SELECT " + dispatchRecordColumns + " FROM dispatch_records" + where +
		" ORDER BY " + column + " " + direction + ", id ASC LIMIT ? OFFSET ?"
	rows, err := q.db.QueryContext(ctx, query, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectDispatchRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// where は検索条件をWHERE句と引数に変換する。
func (f DispatchRecordFilter) where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if f.RecipientEmail != "" {
		conds = append(conds, `recipient_email LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.RecipientEmail)+"%")
	}
	if f.ResourceName != "" {
		conds = append(conds, `resource_name LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(f.ResourceName)+"%")
	}
	if f.ResourceID != "" {
		conds = append(conds, "resource_id = ?")
		args = append(args, f.ResourceID)
	}
	if f.Tag != "" {
		conds = append(conds, "tag = ?")
		args = append(args, f.Tag)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.IsOpened != nil {
		opened := 0
		if *f.IsOpened {
			opened = 1
		}
		conds = append(conds, "is_opened = ?")
		args = append(args, opened)
	}

	conds, args = columnRange(conds, args, "created_at", f.Created)
	conds, args = columnRange(conds, args, "schedule_time", f.Scheduled)
	conds, args = arrayRange(conds, args, "open_times", f.Opened)
	conds, args = arrayRange(conds, args, "sent_times", f.Sent)

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func columnRange(conds []string, args []interface{}, column string, r TimeRange) ([]string, []interface{}) {
	if r.From != "" {
		conds = append(conds, column+" >= ?")
		args = append(args, r.From)
	}
	if r.To != "" {
		conds = append(conds, column+" <= ?")
		args = append(args, r.To)
	}
	return conds, args
}

func arrayRange(conds []string, args []interface{}, column string, r TimeRange) ([]string, []interface{}) {
	if r.IsZero() {
		return conds, args
	}
	inner := []string{"1 = 1"}
	if r.From != "" {
		inner = append(inner, "value >= ?")
		args = append(args, r.From)
	}
	if r.To != "" {
		inner = append(inner, "value <= ?")
		args = append(args, r.To)
	}
	conds = append(conds, "EXISTS (SELECT 1 FROM json_each("+column+") WHERE "+strings.Join(inner, " AND ")+")")
	return conds, args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
