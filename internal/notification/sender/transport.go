package sender

import (
	"context"
	"database/sql"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/notifly/internal/notification/db"
	"go.uber.org/zap"
)

// Transport は送信に使う差出人の設定。
type Transport struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FromAddress string    `json:"from_address"`
	IsDefault   bool      `json:"is_default"`
	CreatedAt   time.Time `json:"created_at"`
}

// Option はセレクトボックス用の選択肢。
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// TransportStore はトランスポートの永続化を担う。
type TransportStore struct {
	conn    *sql.DB
	queries *db.Queries
	logger  *zap.Logger
	now     func() time.Time
}

// NewTransportStore は新しいTransportStoreを生成する。
func NewTransportStore(conn *sql.DB, logger *zap.Logger) *TransportStore {
	return &TransportStore{
		conn:    conn,
		queries: db.New(conn),
		logger:  logger,
		now:     time.Now,
	}
}

// Create はトランスポートを登録する。isDefaultがtrueの場合は既存のデフォルト指定を解除する。
func (s *TransportStore) Create(ctx context.Context, name, fromAddress string, isDefault bool) (*Transport, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: nameは必須です", ErrInvalid)
	}
	if _, err := mail.ParseAddress(fromAddress); err != nil {
		return nil, fmt.Errorf("%w: from_addressが不正です: %v", ErrInvalid, err)
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	var flag int64
	if isDefault {
		flag = 1
		if err := q.ClearDefaultTransport(ctx); err != nil {
			return nil, fmt.Errorf("デフォルト指定の解除に失敗: %w", err)
		}
	}
	row, err := q.CreateTransport(ctx, db.CreateTransportParams{
		ID:          uuid.New().String(),
		Name:        name,
		FromAddress: fromAddress,
		IsDefault:   flag,
		CreatedAt:   db.FormatTime(s.now()),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, name)
		}
		return nil, fmt.Errorf("トランスポートの登録に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}

	s.logger.Info("トランスポートを登録しました",
		zap.String("transport_id", row.ID),
		zap.String("name", row.Name),
	)
	return transportFromRow(row)
}

// List は全トランスポートをデフォルト優先・名前順に返す。
func (s *TransportStore) List(ctx context.Context) ([]*Transport, error) {
	rows, err := s.queries.ListTransports(ctx)
	if err != nil {
		return nil, fmt.Errorf("トランスポート一覧の取得に失敗: %w", err)
	}
	out := make([]*Transport, 0, len(rows))
	for _, row := range rows {
		t, err := transportFromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Options はトランスポート名の選択肢を返す。
func (s *TransportStore) Options(ctx context.Context) ([]Option, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Option, 0, len(list))
	for _, t := range list {
		out = append(out, Option{Label: t.Name, Value: t.Name})
	}
	return out, nil
}

// Delete はトランスポートを削除する。
func (s *TransportStore) Delete(ctx context.Context, id string) error {
	n, err := s.queries.DeleteTransport(ctx, id)
	if err != nil {
		return fmt.Errorf("トランスポートの削除に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	s.logger.Info("トランスポートを削除しました", zap.String("transport_id", id))
	return nil
}

// SetDefault は指定トランスポートをデフォルトにする。デフォルトは常に高々1件。
func (s *TransportStore) SetDefault(ctx context.Context, id string) (*Transport, error) {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	if err := q.ClearDefaultTransport(ctx); err != nil {
		return nil, fmt.Errorf("デフォルト指定の解除に失敗: %w", err)
	}
	n, err := q.SetDefaultTransport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("デフォルト指定に失敗: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	row, err := q.GetTransport(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("トランスポートの取得に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return transportFromRow(row)
}

func transportFromRow(row db.Transport) (*Transport, error) {
	createdAt, err := db.ParseTime(row.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &Transport{
		ID:          row.ID,
		Name:        row.Name,
		FromAddress: row.FromAddress,
		IsDefault:   row.IsDefault == 1,
		CreatedAt:   createdAt,
	}, nil
}

// FallbackTransportName はトランスポートが1件も登録されていない場合に使う名前。
const FallbackTransportName = "default"

// TransportConfig は送信時に参照するトランスポート設定のキャッシュ。
// 内容はReloadを呼んだ時点のtransportsテーブルで、それ以外の契機では変化しない。
type TransportConfig struct {
	store    *TransportStore
	fallback Transport
	logger   *zap.Logger

	mu     sync.RWMutex
	byName map[string]Transport
	def    *Transport
}

// NewTransportConfig は新しいTransportConfigを生成する。
// fallbackFromはトランスポートが未登録の場合の差出人アドレス。
// 生成直後は空のため、利用前にReloadを呼ぶこと。
func NewTransportConfig(store *TransportStore, fallbackFrom string, logger *zap.Logger) *TransportConfig {
	return &TransportConfig{
		store:    store,
		fallback: Transport{Name: FallbackTransportName, FromAddress: fallbackFrom},
		logger:   logger,
		byName:   make(map[string]Transport),
	}
}

// Reload はtransportsテーブルを読み直してキャッシュを置き換える。
func (c *TransportConfig) Reload(ctx context.Context) error {
	list, err := c.store.List(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]Transport, len(list))
	var def *Transport
	for _, t := range list {
		byName[t.Name] = *t
		if t.IsDefault && def == nil {
			d := *t
			def = &d
		}
	}

	c.mu.Lock()
	c.byName = byName
	c.def = def
	c.mu.Unlock()

	c.logger.Info("トランスポート設定を再読み込みしました", zap.Int("count", len(byName)))
	return nil
}

// Select は送信に使うトランスポートを返す。
// nameが空または未登録の場合はデフォルトを、デフォルトも無い場合はフォールバックを返す。
func (c *TransportConfig) Select(name string) Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name != "" {
		if t, ok := c.byName[name]; ok {
			return t
		}
	}
	if c.def != nil {
		return *c.def
	}
	return c.fallback
}
