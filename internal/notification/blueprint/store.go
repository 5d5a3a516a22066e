package blueprint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nao1215/notifly/internal/notification/db"
	"github.com/nao1215/notifly/internal/notification/template"
	"go.uber.org/zap"
)

// Blueprint は再利用可能なメッセージテンプレート。
type Blueprint struct {
	// ID はブループリントの一意識別子（UUID）。
	ID string `json:"id"`
	// Name はブループリント名。一意。
	Name string `json:"name"`
	// ResourceName は対象リソース名。
	ResourceName string `json:"resource_name"`
	// SubjectTemplate は正規化済みの件名テンプレート。
	SubjectTemplate string `json:"subject_template"`
	// BodyTemplate は正規化済みの本文テンプレート。
	BodyTemplate string `json:"body_template"`
	// Placeholders は件名と本文に含まれるプレースホルダ名。
	Placeholders []string `json:"placeholders"`
	// CreatedAt は作成日時。
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt は更新日時。
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateInput はブループリント作成の入力。
type CreateInput struct {
	Name         string
	ResourceName string
	Subject      string
	Body         string
}

// UpdateInput はブループリント更新の入力。
// 件名と本文は必須で、常に両方を置き換える。NameとResourceNameは空なら現状を維持する。
type UpdateInput struct {
	Name         string
	ResourceName string
	Subject      string
	Body         string
}

// ListQuery はブループリント一覧の検索条件。
type ListQuery struct {
	Name         string
	ResourceName string
	NewestFirst  bool
	Page         int
	Limit        int
}

// Page はブループリント一覧の1ページ分。
type Page struct {
	Items []*Blueprint `json:"items"`
	Total int64        `json:"total"`
	Page  int          `json:"page"`
	Limit int          `json:"limit"`
}

// Store はブループリントの永続化を担う。
type Store struct {
	conn    *sql.DB
	queries *db.Queries
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore は新しいStoreを生成する。
func NewStore(conn *sql.DB, logger *zap.Logger) *Store {
	return &Store{
		conn:    conn,
		queries: db.New(conn),
		logger:  logger,
		now:     time.Now,
	}
}

// Create はブループリントを作成する。テンプレートは正規化され、プレースホルダが抽出される。
// 同じ名前のブループリントが存在する場合はErrConflictを返す。
func (s *Store) Create(ctx context.Context, in CreateInput) (*Blueprint, error) {
	return s.create(ctx, s.queries, in)
}

func (s *Store) create(ctx context.Context, q *db.Queries, in CreateInput) (*Blueprint, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: nameは必須です", ErrInvalid)
	}
	if in.Subject == "" || in.Body == "" {
		return nil, fmt.Errorf("%w: subjectとbodyは必須です", ErrInvalid)
	}
	resourceName := in.ResourceName
	if resourceName == "" {
		resourceName = DefaultResourceName
	}

	subject, body, placeholders, err := compile(in.Subject, in.Body)
	if err != nil {
		return nil, err
	}

	row, err := q.CreateBlueprint(ctx, db.CreateBlueprintParams{
		ID:              uuid.New().String(),
		Name:            name,
		ResourceName:    resourceName,
		SubjectTemplate: subject,
		BodyTemplate:    body,
		Placeholders:    placeholders,
		CreatedAt:       db.FormatTime(s.now()),
	})
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, name)
		}
		return nil, fmt.Errorf("ブループリントの作成に失敗: %w", err)
	}

	s.logger.Info("ブループリントを作成しました",
		zap.String("blueprint_id", row.ID),
		zap.String("name", row.Name),
	)
	return fromRow(row)
}

// Update はブループリントを更新し、プレースホルダを再計算する。
// 存在しない場合はErrNotFound、名前が重複する場合はErrConflictを返す。
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*Blueprint, error) {
	if in.Subject == "" || in.Body == "" {
		return nil, fmt.Errorf("%w: subjectとbodyは必須です", ErrInvalid)
	}

	current, err := s.queries.GetBlueprint(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ブループリントの取得に失敗: %w", err)
	}

	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = current.Name
	}
	resourceName := in.ResourceName
	if resourceName == "" {
		resourceName = current.ResourceName
	}

	subject, body, placeholders, err := compile(in.Subject, in.Body)
	if err != nil {
		return nil, err
	}

	row, err := s.queries.UpdateBlueprint(ctx, db.UpdateBlueprintParams{
		ID:              id,
		Name:            name,
		ResourceName:    resourceName,
		SubjectTemplate: subject,
		BodyTemplate:    body,
		Placeholders:    placeholders,
		UpdatedAt:       db.FormatTime(s.now()),
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, name)
		}
		return nil, fmt.Errorf("ブループリントの更新に失敗: %w", err)
	}
	return fromRow(row)
}

// FindByIDOrName は名前、次にIDの順でブループリントを検索する。
func (s *Store) FindByIDOrName(ctx context.Context, idOrName string) (*Blueprint, error) {
	row, err := s.queries.GetBlueprintByName(ctx, idOrName)
	if errors.Is(err, sql.ErrNoRows) {
		row, err = s.queries.GetBlueprint(ctx, idOrName)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrName)
		}
		return nil, fmt.Errorf("ブループリントの取得に失敗: %w", err)
	}
	return fromRow(row)
}

// FindByID はIDでブループリントを取得する。
func (s *Store) FindByID(ctx context.Context, id string) (*Blueprint, error) {
	row, err := s.queries.GetBlueprint(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("ブループリントの取得に失敗: %w", err)
	}
	return fromRow(row)
}

// Delete はブループリントと、それを参照するオートメーションを削除する。
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	q := s.queries.WithTx(tx)
	n, err := q.DeleteBlueprint(ctx, id)
	if err != nil {
		return fmt.Errorf("ブループリントの削除に失敗: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if _, err := q.DeleteAutomationsByBlueprint(ctx, id); err != nil {
		return fmt.Errorf("オートメーションの削除に失敗: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("コミットに失敗: %w", err)
	}

	s.logger.Info("ブループリントを削除しました", zap.String("blueprint_id", id))
	return nil
}

// List は条件に一致するブループリントをページ単位で返す。
func (s *Store) List(ctx context.Context, lq ListQuery) (*Page, error) {
	page, limit := normalizePage(lq.Page, lq.Limit)

	rows, err := s.queries.ListBlueprints(ctx, db.ListBlueprintsParams{
		Name:         lq.Name,
		ResourceName: lq.ResourceName,
		NewestFirst:  lq.NewestFirst,
		Limit:        int64(limit),
		Offset:       int64((page - 1) * limit),
	})
	if err != nil {
		return nil, fmt.Errorf("ブループリント一覧の取得に失敗: %w", err)
	}
	total, err := s.queries.CountBlueprints(ctx, lq.Name, lq.ResourceName)
	if err != nil {
		return nil, fmt.Errorf("ブループリント件数の取得に失敗: %w", err)
	}

	items := make([]*Blueprint, 0, len(rows))
	for _, row := range rows {
		b, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// ListOptions は全ブループリントの選択肢（ラベル=名前、値=ID）を返す。
func (s *Store) ListOptions(ctx context.Context) ([]Option, error) {
	return s.options(ctx, "")
}

// PromotionOptions はリソース名がpromotionのブループリントの選択肢を返す。
func (s *Store) PromotionOptions(ctx context.Context) ([]Option, error) {
	return s.options(ctx, DefaultResourceName)
}

func (s *Store) options(ctx context.Context, resourceName string) ([]Option, error) {
	rows, err := s.queries.ListBlueprintsByResourceName(ctx, resourceName)
	if err != nil {
		return nil, fmt.Errorf("ブループリント選択肢の取得に失敗: %w", err)
	}
	options := make([]Option, 0, len(rows))
	for _, row := range rows {
		options = append(options, Option{Label: row.Name, Value: row.ID})
	}
	return options, nil
}

// compile はテンプレートを正規化し、プレースホルダ一覧をJSON配列として返す。
func compile(subject, body string) (string, string, string, error) {
	subject = template.Normalize(subject)
	body = template.Normalize(body)
	encoded, err := json.Marshal(template.ExtractPlaceholders(subject, body))
	if err != nil {
		return "", "", "", fmt.Errorf("プレースホルダのエンコードに失敗: %w", err)
	}
	return subject, body, string(encoded), nil
}

func fromRow(row db.Blueprint) (*Blueprint, error) {
	var placeholders []string
	if err := json.Unmarshal([]byte(row.Placeholders), &placeholders); err != nil {
		return nil, fmt.Errorf("プレースホルダのデコードに失敗: %w", err)
	}
	createdAt, err := db.ParseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("作成日時のパースに失敗: %w", err)
	}
	updatedAt, err := db.ParseTime(row.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("更新日時のパースに失敗: %w", err)
	}
	return &Blueprint{
		ID:              row.ID,
		Name:            row.Name,
		ResourceName:    row.ResourceName,
		SubjectTemplate: row.SubjectTemplate,
		BodyTemplate:    row.BodyTemplate,
		Placeholders:    placeholders,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}, nil
}

// normalizePage はページ番号と件数を既定値と上限に収める。
func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}
	return page, limit
}
