package db

import "context"

const blueprintColumns = `id, name, resource_name, subject_template, body_template, placeholders, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBlueprint(row rowScanner) (Blueprint, error) {
	var i Blueprint
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ResourceName,
		&i.SubjectTemplate,
		&i.BodyTemplate,
		&i.Placeholders,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createBlueprint = `INSERT INTO blueprints (
    id, name, resource_name, subject_template, body_template, placeholders, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING ` + blueprintColumns

// CreateBlueprintParams はCreateBlueprintのパラメータ。
type CreateBlueprintParams struct {
	ID              string
	Name            string
	ResourceName    string
	SubjectTemplate string
	BodyTemplate    string
	Placeholders    string
	CreatedAt       string
}

// CreateBlueprint はブループリントを登録する。
func (q *Queries) CreateBlueprint(ctx context.Context, arg CreateBlueprintParams) (Blueprint, error) {
	row := q.db.QueryRowContext(ctx, createBlueprint,
		arg.ID,
		arg.Name,
		arg.ResourceName,
		arg.SubjectTemplate,
		arg.BodyTemplate,
		arg.Placeholders,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	return scanBlueprint(row)
}

const getBlueprint = `SELECT ` + blueprintColumns + ` FROM blueprints WHERE id = ?`

// GetBlueprint はIDでブループリントを取得する。
func (q *Queries) GetBlueprint(ctx context.Context, id string) (Blueprint, error) {
	return scanBlueprint(q.db.QueryRowContext(ctx, getBlueprint, id))
}

const getBlueprintByName = `SELECT ` + blueprintColumns + ` FROM blueprints WHERE name = ?`

// GetBlueprintByName は名前でブループリントを取得する。
func (q *Queries) GetBlueprintByName(ctx context.Context, name string) (Blueprint, error) {
	return scanBlueprint(q.db.QueryRowContext(ctx, getBlueprintByName, name))
}

const updateBlueprint = `UPDATE blueprints
SET name = ?, resource_name = ?, subject_template = ?, body_template = ?, placeholders = ?, updated_at = ?
WHERE id = ?
RETURNING ` + blueprintColumns

// UpdateBlueprintParams はUpdateBlueprintのパラメータ。
type UpdateBlueprintParams struct {
	ID              string
	Name            string
	ResourceName    string
	SubjectTemplate string
	BodyTemplate    string
	Placeholders    string
	UpdatedAt       string
}

// UpdateBlueprint はブループリントを更新する。
func (q *Queries) UpdateBlueprint(ctx context.Context, arg UpdateBlueprintParams) (Blueprint, error) {
	row := q.db.QueryRowContext(ctx, updateBlueprint,
		arg.Name,
		arg.ResourceName,
		arg.SubjectTemplate,
		arg.BodyTemplate,
		arg.Placeholders,
		arg.UpdatedAt,
		arg.ID,
	)
	return scanBlueprint(row)
}

const deleteBlueprint = `DELETE FROM blueprints WHERE id = ?`

// DeleteBlueprint はブループリントを削除し、削除件数を返す。
func (q *Queries) DeleteBlueprint(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteBlueprint, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listBlueprints = `SELECT ` + blueprintColumns + ` FROM blueprints
WHERE (?1 = '' OR name LIKE '%' || ?1 || '%')
  AND (?2 = '' OR resource_name = ?2)
ORDER BY
  CASE WHEN ?3 = 1 THEN created_at END DESC,
  CASE WHEN ?3 = 0 THEN created_at END ASC,
  id ASC
LIMIT ?4 OFFSET ?5`

// ListBlueprintsParams はListBlueprintsのパラメータ。
type ListBlueprintsParams struct {
	Name         string
	ResourceName string
	NewestFirst  bool
	Limit        int64
	Offset       int64
}

// ListBlueprints は条件に一致するブループリントを作成日時順に返す。
func (q *Queries) ListBlueprints(ctx context.Context, arg ListBlueprintsParams) ([]Blueprint, error) {
	newest := 0
	if arg.NewestFirst {
		newest = 1
	}
	rows, err := q.db.QueryContext(ctx, listBlueprints,
		arg.Name,
		arg.ResourceName,
		newest,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Blueprint{}
	for rows.Next() {
		i, err := scanBlueprint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const countBlueprints = `SELECT COUNT(*) FROM blueprints
WHERE (?1 = '' OR name LIKE '%' || ?1 || '%')
  AND (?2 = '' OR resource_name = ?2)`

// CountBlueprints は条件に一致するブループリントの件数を返す。
func (q *Queries) CountBlueprints(ctx context.Context, name, resourceName string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countBlueprints, name, resourceName).Scan(&count)
	return count, err
}

const listBlueprintsByResourceName = `SELECT ` + blueprintColumns + ` FROM blueprints
WHERE (?1 = '' OR resource_name = ?1)
ORDER BY name ASC`

// ListBlueprintsByResourceName はリソース名で絞り込んだブループリントを名前順に返す。
// resourceNameが空の場合は全件を返す。
func (q *Queries) ListBlueprintsByResourceName(ctx context.Context, resourceName string) ([]Blueprint, error) {
	rows, err := q.db.QueryContext(ctx, listBlueprintsByResourceName, resourceName)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Blueprint{}
	for rows.Next() {
		i, err := scanBlueprint(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
