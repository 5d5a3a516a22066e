package db

import "context"

const automationColumns = `id, name, resource_name, blueprint_id, created_at, updated_at`

func scanAutomation(row rowScanner) (Automation, error) {
	var i Automation
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.ResourceName,
		&i.BlueprintID,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertAutomation = `INSERT INTO automations (id, name, resource_name, blueprint_id, created_at, updated_at)
VALUES (?1, ?2, ?3, ?4, ?5, ?5)
ON CONFLICT (resource_name) DO UPDATE SET
    name = CASE WHEN excluded.name = '' THEN automations.name ELSE excluded.name END,
    blueprint_id = excluded.blueprint_id,
    updated_at = excluded.updated_at
RETURNING ` + automationColumns

// UpsertAutomationParams はUpsertAutomationのパラメータ。
type UpsertAutomationParams struct {
	ID           string
	Name         string
	ResourceName string
	BlueprintID  string
	Now          string
}

// UpsertAutomation はリソース名をキーにオートメーションを登録または更新する。
// 既存行がある場合のIDと作成日時は維持される。
func (q *Queries) UpsertAutomation(ctx context.Context, arg UpsertAutomationParams) (Automation, error) {
	row := q.db.QueryRowContext(ctx, upsertAutomation,
		arg.ID,
		arg.Name,
		arg.ResourceName,
		arg.BlueprintID,
		arg.Now,
	)
	return scanAutomation(row)
}

const getAutomation = `SELECT ` + automationColumns + ` FROM automations WHERE id = ?`

// GetAutomation はIDでオートメーションを取得する。
func (q *Queries) GetAutomation(ctx context.Context, id string) (Automation, error) {
	return scanAutomation(q.db.QueryRowContext(ctx, getAutomation, id))
}

const getAutomationByResourceName = `SELECT ` + automationColumns + ` FROM automations WHERE resource_name = ?`

// GetAutomationByResourceName はリソース名でオートメーションを取得する。
func (q *Queries) GetAutomationByResourceName(ctx context.Context, resourceName string) (Automation, error) {
	return scanAutomation(q.db.QueryRowContext(ctx, getAutomationByResourceName, resourceName))
}

const listAutomations = `SELECT ` + automationColumns + ` FROM automations ORDER BY resource_name ASC`

// ListAutomations は全オートメーションをリソース名順に返す。
func (q *Queries) ListAutomations(ctx context.Context) ([]Automation, error) {
	rows, err := q.db.QueryContext(ctx, listAutomations)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Automation{}
	for rows.Next() {
		i, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteAutomation = `DELETE FROM automations WHERE id = ?`

// DeleteAutomation はオートメーションを削除し、削除件数を返す。
func (q *Queries) DeleteAutomation(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAutomation, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteAutomationsByBlueprint = `DELETE FROM automations WHERE blueprint_id = ?`

// DeleteAutomationsByBlueprint は指定ブループリントを参照するオートメーションを削除する。
func (q *Queries) DeleteAutomationsByBlueprint(ctx context.Context, blueprintID string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteAutomationsByBlueprint, blueprintID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
