package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/notifly/internal/notification/db"
	"github.com/nao1215/notifly/internal/notification/template"
	"go.uber.org/zap"
)

// Ledger は配信レコードの永続化と状態遷移を担う。
type Ledger struct {
	conn    *sql.DB
	queries *db.Queries
	logger  *zap.Logger
	now     func() time.Time
}

// New は新しいLedgerを生成する。
func New(conn *sql.DB, logger *zap.Logger) *Ledger {
	return &Ledger{
		conn:    conn,
		queries: db.New(conn),
		logger:  logger,
		now:     time.Now,
	}
}

// Create は配信レコードを1件作成する。
func (l *Ledger) Create(ctx context.Context, n NewRecord) (*Record, error) {
	records, err := l.CreateBatch(ctx, []NewRecord{n})
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// CreateBatch は複数の配信レコードを1つのトランザクションで作成する。
// いずれかの入力が不正な場合は1件も作成しない。
func (l *Ledger) CreateBatch(ctx context.Context, inputs []NewRecord) ([]*Record, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: 宛先がありません", ErrInvalid)
	}
	for _, n := range inputs {
		if err := n.validate(); err != nil {
			return nil, err
		}
	}

	tx, err := l.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := l.queries.WithTx(tx)
	now := l.now()
	rows := make([]db.DispatchRecord, 0, len(inputs))
	for _, n := range inputs {
		params, err := n.params(uuid.New().String(), now)
		if err != nil {
			return nil, err
		}
		row, err := q.CreateDispatchRecord(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("配信レコードの作成に失敗: %w", err)
		}
		rows = append(rows, row)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return recordsFromRows(rows)
}

// Get はIDで配信レコードを取得する。
func (l *Ledger) Get(ctx context.Context, id string) (*Record, error) {
	row, err := l.queries.GetDispatchRecord(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("配信レコードの取得に失敗: %w", err)
	}
	return recordFromRow(row)
}

// transition は現在の状態がfromのいずれかである場合に限りtoへ遷移させる。
// 条件を満たさない場合は*TransitionErrorを、レコードが無い場合はErrNotFoundを返す。
func (l *Ledger) transition(ctx context.Context, id string, to Status, from []Status) (*Record, error) {
	row, err := l.queries.TransitionDispatchRecord(ctx, db.TransitionDispatchRecordParams{
		ID:        id,
		To:        string(to),
		From:      statusStrings(from),
		UpdatedAt: db.FormatTime(l.now()),
	})
	if err == nil {
		return recordFromRow(row)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("配信レコードの状態更新に失敗: %w", err)
	}
	return nil, l.rejection(ctx, id, to)
}

// rejection は条件付き更新が0件だった理由を調べてエラーを返す。
func (l *Ledger) rejection(ctx context.Context, id string, to Status) error {
	current, err := l.Get(ctx, id)
	if err != nil {
		return err
	}
	return &TransitionError{ID: id, From: current.Status, To: to}
}

// MarkQueued は下書きをキュー投入済みにする。
func (l *Ledger) MarkQueued(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusQueued, fromSendDraft)
}

// MarkProcessing はキュー投入済みのレコードを処理中にする。
// キャンセルや一時停止された後にデキューされたレコードはここで弾かれる。
func (l *Ledger) MarkProcessing(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusProcessing, fromClaim)
}

// MarkCompleted は処理中のレコードを完了にし、送信日時を追記する。
func (l *Ledger) MarkCompleted(ctx context.Context, id string) (*Record, error) {
	row, err := l.queries.CompleteDispatchRecord(ctx, id, db.FormatTime(l.now()))
	if err == nil {
		return recordFromRow(row)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("配信レコードの完了更新に失敗: %w", err)
	}
	return nil, l.rejection(ctx, id, StatusCompleted)
}

// MarkFailed は処理中のレコードを送信失敗にする。
func (l *Ledger) MarkFailed(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusFailed, fromProcessing)
}

// MarkNotFound は処理中のレコードをブループリント未検出にする。
func (l *Ledger) MarkNotFound(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusNotFound, fromProcessing)
}

// MarkOpened は開封を記録する。状態に関係なく、呼び出すたびに開封日時を追記する。
func (l *Ledger) MarkOpened(ctx context.Context, id string) error {
	n, err := l.queries.RecordOpen(ctx, id, db.FormatTime(l.now()))
	if err != nil {
		return fmt.Errorf("開封の記録に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// MarkClicked はクリックを記録する。クリックは開封としても記録される。
func (l *Ledger) MarkClicked(ctx context.Context, id string) error {
	n, err := l.queries.RecordClick(ctx, id, db.FormatTime(l.now()))
	if err != nil {
		return fmt.Errorf("クリックの記録に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// FindDueScheduled は予約日時を過ぎた予約レコードを最大limit件取得し、
// 取得と同時にキュー投入済みへ遷移させる。戻り値は予約日時の昇順。
func (l *Ledger) FindDueScheduled(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		return []*Record{}, nil
	}
	rows, err := l.queries.ClaimDueDispatchRecords(ctx, db.FormatTime(l.now()), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("予約レコードの取得に失敗: %w", err)
	}
	records, err := recordsFromRows(rows)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.ScheduleTime.Equal(*b.ScheduleTime) {
			return a.ScheduleTime.Before(*b.ScheduleTime)
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return records, nil
}

// QueueDrafts はリソース（tagが空でなければタグも）に属する下書きをすべてキュー投入済みにする。
func (l *Ledger) QueueDrafts(ctx context.Context, resourceID, tag string) ([]*Record, error) {
	if resourceID == "" {
		return nil, fmt.Errorf("%w: resource_idは必須です", ErrInvalid)
	}
	rows, err := l.queries.QueueDraftDispatchRecords(ctx, db.FormatTime(l.now()), resourceID, tag)
	if err != nil {
		return nil, fmt.Errorf("下書きの更新に失敗: %w", err)
	}
	return recordsFromRows(rows)
}

// ListQueued はキュー投入済みのレコードを優先度順に返す。起動時の再投入に使う。
func (l *Ledger) ListQueued(ctx context.Context) ([]*Record, error) {
	rows, err := l.queries.ListDispatchRecordsByStatus(ctx, string(StatusQueued))
	if err != nil {
		return nil, fmt.Errorf("キュー投入済みレコードの取得に失敗: %w", err)
	}
	return recordsFromRows(rows)
}

// Resend は終了状態のレコードを同じIDのままキュー投入済みに戻す。
// レンダリング済みの内容はそのまま再利用される。
func (l *Ledger) Resend(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusQueued, fromResend)
}

// Cancel はレコードをキャンセルする。処理中のレコードもキャンセルでき、
// 実行中の送信結果はキャンセル状態を上書きしない。
func (l *Ledger) Cancel(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusCancelled, fromCancel)
}

// Pause はレコードを一時停止する。
func (l *Ledger) Pause(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusPaused, fromPause)
}

// Resume は一時停止中のレコードをキュー投入済みに戻す。
func (l *Ledger) Resume(ctx context.Context, id string) (*Record, error) {
	return l.transition(ctx, id, StatusQueued, fromResume)
}

// Delete はレコードを削除する。
func (l *Ledger) Delete(ctx context.Context, id string) error {
	n, err := l.queries.DeleteDispatchRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("配信レコードの削除に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	l.logger.Info("配信レコードを削除しました", zap.String("record_id", id))
	return nil
}

// SetRendered はレンダリング済みの件名と本文を保存する。
func (l *Ledger) SetRendered(ctx context.Context, id string, rendered template.Rendered) error {
	err := l.queries.SetRenderedContent(ctx, db.SetRenderedContentParams{
		ID:        id,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
		UpdatedAt: db.FormatTime(l.now()),
	})
	if err != nil {
		return fmt.Errorf("レンダリング結果の保存に失敗: %w", err)
	}
	return nil
}

// Stats は宛先ごとのエンゲージメント集計。
type Stats struct {
	SentCount      int64 `json:"sent_count"`
	OpenedCount    int64 `json:"opened_count"`
	ClickedCount   int64 `json:"clicked_count"`
	QueuedCount    int64 `json:"queued_count"`
	ScheduledCount int64 `json:"scheduled_count"`
}

// ComputeEngagementStats は宛先ごとの送信・開封・クリック・待機件数を集計する。
func (l *Ledger) ComputeEngagementStats(ctx context.Context, recipientEmail string) (Stats, error) {
	s, err := l.queries.GetEngagementStats(ctx, recipientEmail)
	if err != nil {
		return Stats{}, fmt.Errorf("エンゲージメント集計に失敗: %w", err)
	}
	return Stats{
		SentCount:      s.SentCount,
		OpenedCount:    s.OpenedCount,
		ClickedCount:   s.ClickedCount,
		QueuedCount:    s.QueuedCount,
		ScheduledCount: s.ScheduledCount,
	}, nil
}
