package blueprint

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/notifly/internal/notification/db"
	"go.uber.org/zap"
)

// Automation はリソース名と、そのリソースの通知に使うブループリントの対応。
type Automation struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	ResourceName string    `json:"resource_name"`
	BlueprintID  string    `json:"blueprint_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Registry はオートメーションを管理する。リソース名ごとに高々1件のみ存在する。
type Registry struct {
	conn    *sql.DB
	queries *db.Queries
	store   *Store
	logger  *zap.Logger
	now     func() time.Time
}

// NewRegistry は新しいRegistryを生成する。
func NewRegistry(conn *sql.DB, store *Store, logger *zap.Logger) *Registry {
	return &Registry{
		conn:    conn,
		queries: db.New(conn),
		store:   store,
		logger:  logger,
		now:     time.Now,
	}
}

// UpsertForResource はリソースのオートメーションを登録する。
// 既に存在する場合は参照先のブループリントを上書きする。
// nameが空の場合、既存の名前は維持される。
func (r *Registry) UpsertForResource(ctx context.Context, resourceName, blueprintID, name string) (*Automation, error) {
	resourceName = strings.TrimSpace(resourceName)
	if resourceName == "" || blueprintID == "" {
		return nil, fmt.Errorf("%w: resource_nameとblueprint_idは必須です", ErrInvalid)
	}
	if _, err := r.store.FindByID(ctx, blueprintID); err != nil {
		return nil, err
	}
	return r.upsert(ctx, r.queries, resourceName, blueprintID, name)
}

func (r *Registry) upsert(ctx context.Context, q *db.Queries, resourceName, blueprintID, name string) (*Automation, error) {
	row, err := q.UpsertAutomation(ctx, db.UpsertAutomationParams{
		ID:           uuid.New().String(),
		Name:         name,
		ResourceName: resourceName,
		BlueprintID:  blueprintID,
		Now:          db.FormatTime(r.now()),
	})
	if err != nil {
		return nil, fmt.Errorf("オートメーションの登録に失敗: %w", err)
	}

	r.logger.Info("オートメーションを登録しました",
		zap.String("resource_name", resourceName),
		zap.String("blueprint_id", blueprintID),
	)
	return automationFromRow(row)
}

// CreateWithBlueprint はブループリントを作成し、同じトランザクションでリソースに紐付ける。
func (r *Registry) CreateWithBlueprint(ctx context.Context, name string, in CreateInput) (*Automation, *Blueprint, error) {
	if strings.TrimSpace(in.ResourceName) == "" {
		return nil, nil, fmt.Errorf("%w: resource_nameは必須です", ErrInvalid)
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := r.queries.WithTx(tx)
	bp, err := r.store.create(ctx, q, in)
	if err != nil {
		return nil, nil, err
	}
	a, err := r.upsert(ctx, q, bp.ResourceName, bp.ID, name)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("コミットに失敗: %w", err)
	}
	return a, bp, nil
}

// ResolveBlueprintID はリソースに登録されたブループリントのIDを返す。
// オートメーションが無い場合はErrAutomationNotFoundを返す。
func (r *Registry) ResolveBlueprintID(ctx context.Context, resourceName string) (string, error) {
	row, err := r.queries.GetAutomationByResourceName(ctx, resourceName)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrAutomationNotFound, resourceName)
		}
		return "", fmt.Errorf("オートメーションの取得に失敗: %w", err)
	}
	return row.BlueprintID, nil
}

// Get はIDでオートメーションを取得する。
func (r *Registry) Get(ctx context.Context, id string) (*Automation, error) {
	row, err := r.queries.GetAutomation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
		}
		return nil, fmt.Errorf("オートメーションの取得に失敗: %w", err)
	}
	return automationFromRow(row)
}

// List は全オートメーションを返す。
func (r *Registry) List(ctx context.Context) ([]*Automation, error) {
	rows, err := r.queries.ListAutomations(ctx)
	if err != nil {
		return nil, fmt.Errorf("オートメーション一覧の取得に失敗: %w", err)
	}
	items := make([]*Automation, 0, len(rows))
	for _, row := range rows {
		a, err := automationFromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, nil
}

// Delete はオートメーションと、その参照先のブループリントを削除する。
// 同じブループリントを参照する他のオートメーションも合わせて削除し、参照切れを残さない。
func (r *Registry) Delete(ctx context.Context, id string) error {
	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := r.queries.WithTx(tx)
	row, err := q.GetAutomation(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrAutomationNotFound, id)
		}
		return fmt.Errorf("オートメーションの取得に失敗: %w", err)
	}
	removed, err := q.DeleteAutomationsByBlueprint(ctx, row.BlueprintID)
	if err != nil {
		return fmt.Errorf("オートメーションの削除に失敗: %w", err)
	}
	if _, err := q.DeleteBlueprint(ctx, row.BlueprintID); err != nil {
		return fmt.Errorf("ブループリントの削除に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	r.logger.Info("オートメーションを削除しました",
		zap.String("automation_id", id),
		zap.String("blueprint_id", row.BlueprintID),
		zap.Int64("automations", removed),
	)
	return nil
}

// ListResourceOptions はリソース名の選択肢を返す。
func (r *Registry) ListResourceOptions() []Option {
	return ResourceOptions()
}

// ListAutomationOptionsForResource はリソースのオートメーション名の選択肢を返す。
func (r *Registry) ListAutomationOptionsForResource(resourceName string) []Option {
	return AutomationOptions(resourceName)
}

// ListPlaceholdersForResource はリソースで利用できるプレースホルダ名を返す。
func (r *Registry) ListPlaceholdersForResource(resourceName string) []string {
	return Placeholders(resourceName)
}

func automationFromRow(row db.Automation) (*Automation, error) {
	createdAt, err := db.ParseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
	}
	updatedAt, err := db.ParseTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("更新日時のパースに失敗: %w", err)
	}
	return &Automation{
		ID:           row.ID,
		Name:         row.Name,
		ResourceName: row.ResourceName,
		BlueprintID:  row.BlueprintID,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}, nil
}
