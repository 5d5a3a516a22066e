package db

import (
	"context"
	"database/sql"
	"encoding/json"
)

const dispatchRecordColumns = `id, recipient_email, resource_id, resource_name, tag, status,
    is_opened, is_clicked, schedule_time, open_times, click_times, sent_times,
    cc, bcc, blueprint_ref, place_values, priority, is_predefined, transport,
    rendered_subject, rendered_body, created_at, updated_at`

func scanDispatchRecord(row rowScanner) (DispatchRecord, error) {
	var i DispatchRecord
	err := row.Scan(
		&i.ID,
		&i.RecipientEmail,
		&i.ResourceID,
		&i.ResourceName,
		&i.Tag,
		&i.Status,
		&i.IsOpened,
		&i.IsClicked,
		&i.ScheduleTime,
		&i.OpenTimes,
		&i.ClickTimes,
		&i.SentTimes,
		&i.Cc,
		&i.Bcc,
		&i.BlueprintRef,
		&i.PlaceValues,
		&i.Priority,
		&i.IsPredefined,
		&i.Transport,
		&i.RenderedSubject,
		&i.RenderedBody,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

func collectDispatchRecords(rows *sql.Rows) ([]DispatchRecord, error) {
	defer func() { _ = rows.Close() }()

	items := []DispatchRecord{}
	for rows.Next() {
		i, err := scanDispatchRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const createDispatchRecord = `INSERT INTO dispatch_records (
    id, recipient_email, resource_id, resource_name, tag, status, schedule_time,
    cc, bcc, blueprint_ref, place_values, priority, is_predefined, transport,
    rendered_subject, rendered_body, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + dispatchRecordColumns

// CreateDispatchRecordParams はCreateDispatchRecordのパラメータ。
type CreateDispatchRecordParams struct {
	ID              string
	RecipientEmail  string
	ResourceID      string
	ResourceName    string
	Tag             string
	Status          string
	ScheduleTime    sql.NullString
	Cc              string
	Bcc             string
	BlueprintRef    string
	PlaceValues     string
	Priority        int64
	IsPredefined    int64
	Transport       string
	RenderedSubject sql.NullString
	RenderedBody    sql.NullString
	CreatedAt       string
}

// CreateDispatchRecord は配信レコードを登録する。
func (q *Queries) CreateDispatchRecord(ctx context.Context, arg CreateDispatchRecordParams) (DispatchRecord, error) {
	row := q.db.QueryRowContext(ctx, createDispatchRecord,
		arg.ID,
		arg.RecipientEmail,
		arg.ResourceID,
		arg.ResourceName,
		arg.Tag,
		arg.Status,
		arg.ScheduleTime,
		arg.Cc,
		arg.Bcc,
		arg.BlueprintRef,
		arg.PlaceValues,
		arg.Priority,
		arg.IsPredefined,
		arg.Transport,
		arg.RenderedSubject,
		arg.RenderedBody,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return scanDispatchRecord(row)
}

const getDispatchRecord = `SELECT ` + dispatchRecordColumns + ` FROM dispatch_records WHERE id = ?`

// GetDispatchRecord はIDで配信レコードを取得する。
func (q *Queries) GetDispatchRecord(ctx context.Context, id string) (DispatchRecord, error) {
	return scanDispatchRecord(q.db.QueryRowContext(ctx, getDispatchRecord, id))
}

const transitionDispatchRecord = `UPDATE dispatch_records
SET status = ?1, updated_at = ?2
WHERE id = ?3 AND status IN (SELECT value FROM json_each(?4))
RETURNING ` + dispatchRecordColumns

// TransitionDispatchRecordParams はTransitionDispatchRecordのパラメータ。
type TransitionDispatchRecordParams struct {
	ID        string
	To        string
	From      []string
	UpdatedAt string
}

// TransitionDispatchRecord は現在の状態がFromのいずれかである場合に限り状態をToへ更新する。
// 条件に一致しない場合はsql.ErrNoRowsを返す。
func (q *Queries) TransitionDispatchRecord(ctx context.Context, arg TransitionDispatchRecordParams) (DispatchRecord, error) {
	from, err := json.Marshal(arg.From)
	if err != nil {
		return DispatchRecord{}, err
	}
	row := q.db.QueryRowContext(ctx, transitionDispatchRecord,
		arg.To,
		arg.UpdatedAt,
		arg.ID,
		string(from),
	)
	return scanDispatchRecord(row)
}

const completeDispatchRecord = `UPDATE dispatch_records
SET status = 'completed',
    sent_times = json_insert(sent_times, '$[#]', ?1),
    updated_at = ?1
WHERE id = ?2 AND status = 'processing'
RETURNING ` + dispatchRecordColumns

// CompleteDispatchRecord は処理中の配信レコードを完了にし、送信日時を追記する。
func (q *Queries) CompleteDispatchRecord(ctx context.Context, id, now string) (DispatchRecord, error) {
	return scanDispatchRecord(q.db.QueryRowContext(ctx, completeDispatchRecord, now, id))
}

const recordOpen = `UPDATE dispatch_records
SET is_opened = 1,
    open_times = json_insert(open_times, '$[#]', ?1),
    updated_at = ?1
WHERE id = ?2`

// RecordOpen は開封フラグを立てて開封日時を追記し、更新件数を返す。
func (q *Queries) RecordOpen(ctx context.Context, id, now string) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordOpen, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const recordClick = `UPDATE dispatch_records
SET is_opened = 1,
    open_times = json_insert(open_times, '$[#]', ?1),
    is_clicked = 1,
    click_times = json_insert(click_times, '$[#]', ?1),
    updated_at = ?1
WHERE id = ?2`

// RecordClick は開封とクリックを同時に記録し、更新件数を返す。
func (q *Queries) RecordClick(ctx context.Context, id, now string) (int64, error) {
	result, err := q.db.ExecContext(ctx, recordClick, now, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const claimDueDispatchRecords = `UPDATE dispatch_records
SET status = 'queued', updated_at = ?1
WHERE status = 'scheduled'
  AND id IN (
    SELECT id FROM dispatch_records
    WHERE status = 'scheduled' AND schedule_time <= ?1
    ORDER BY schedule_time ASC, created_at ASC
    LIMIT ?2
  )
RETURNING ` + dispatchRecordColumns

// ClaimDueDispatchRecords は予約日時を過ぎた配信レコードを最大limit件取得し、
// 同じ文の中でqueuedへ更新する。戻り値の順序は保証されない。
func (q *Queries) ClaimDueDispatchRecords(ctx context.Context, now string, limit int64) ([]DispatchRecord, error) {
	rows, err := q.db.QueryContext(ctx, claimDueDispatchRecords, now, limit)
	if err != nil {
		return nil, err
	}
	return collectDispatchRecords(rows)
}

const queueDraftDispatchRecords = `UPDATE dispatch_records
SET status = 'queued', updated_at = ?1
WHERE status = 'draft'
  AND resource_id = ?2
  AND (?3 = '' OR tag = ?3)
RETURNING ` + dispatchRecordColumns

// QueueDraftDispatchRecords はリソース（とタグ）に属する下書きをすべてqueuedへ更新する。
func (q *Queries) QueueDraftDispatchRecords(ctx context.Context, now, resourceID, tag string) ([]DispatchRecord, error) {
	rows, err := q.db.QueryContext(ctx, queueDraftDispatchRecords, now, resourceID, tag)
	if err != nil {
		return nil, err
	}
	return collectDispatchRecords(rows)
}

const listDispatchRecordsByStatus = `SELECT ` + dispatchRecordColumns + ` FROM dispatch_records
WHERE status = ?
ORDER BY priority DESC, created_at ASC`

// ListDispatchRecordsByStatus は指定状態の配信レコードを優先度順に返す。
func (q *Queries) ListDispatchRecordsByStatus(ctx context.Context, status string) ([]DispatchRecord, error) {
	rows, err := q.db.QueryContext(ctx, listDispatchRecordsByStatus, status)
	if err != nil {
		return nil, err
	}
	return collectDispatchRecords(rows)
}

const setRenderedContent = `UPDATE dispatch_records
SET rendered_subject = ?1, rendered_body = ?2, updated_at = ?3
WHERE id = ?4`

// SetRenderedContentParams はSetRenderedContentのパラメータ。
type SetRenderedContentParams struct {
	ID        string
	Subject   string
	Body      string
	UpdatedAt string
}

// SetRenderedContent はレンダリング済みの件名と本文を保存する。
func (q *Queries) SetRenderedContent(ctx context.Context, arg SetRenderedContentParams) error {
	_, err := q.db.ExecContext(ctx, setRenderedContent, arg.Subject, arg.Body, arg.UpdatedAt, arg.ID)
	return err
}

const deleteDispatchRecord = `DELETE FROM dispatch_records WHERE id = ?`

// DeleteDispatchRecord は配信レコードを削除し、削除件数を返す。
func (q *Queries) DeleteDispatchRecord(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteDispatchRecord, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getEngagementStats = `SELECT
    COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(is_opened), 0),
    COALESCE(SUM(is_clicked), 0),
    COALESCE(SUM(CASE WHEN status = 'queued' THEN 1 ELSE 0 END), 0),
    COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0)
FROM dispatch_records
WHERE recipient_email = ?`

// GetEngagementStats は宛先ごとの送信・開封・クリック・待機件数を集計する。
func (q *Queries) GetEngagementStats(ctx context.Context, recipientEmail string) (EngagementStats, error) {
	var i EngagementStats
	err := q.db.QueryRowContext(ctx, getEngagementStats, recipientEmail).Scan(
		&i.SentCount,
		&i.OpenedCount,
		&i.ClickedCount,
		&i.QueuedCount,
		&i.ScheduledCount,
	)
	return i, err
}
