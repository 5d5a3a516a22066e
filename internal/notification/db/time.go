package db

import (
	"database/sql"
	"time"
)

// TimeLayout は日時カラムの保存形式。固定長のため辞書順と時刻順が一致する。
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime は日時を保存形式の文字列に変換する。
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime は保存形式の文字列を日時に変換する。
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeLayout, s)
}

// NullTime はnilを許容する日時をsql.NullStringに変換する。
func NullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: FormatTime(*t), Valid: true}
}
