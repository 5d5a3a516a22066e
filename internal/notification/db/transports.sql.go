package db

import "context"

const transportColumns = `id, name, from_address, is_default, created_at`

func scanTransport(row rowScanner) (Transport, error) {
	var i Transport
	err := row.Scan(
		&i.ID,
		&i.Name,
		&i.FromAddress,
		&i.IsDefault,
		&i.CreatedAt,
	)
	return i, err
}

const createTransport = `INSERT INTO transports (id, name, from_address, is_default, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING ` + transportColumns

// CreateTransportParams はCreateTransportのパラメータ。
type CreateTransportParams struct {
	ID          string
	Name        string
	FromAddress string
	IsDefault   int64
	CreatedAt   string
}

// CreateTransport はトランスポートを登録する。
func (q *Queries) CreateTransport(ctx context.Context, arg CreateTransportParams) (Transport, error) {
	row := q.db.QueryRowContext(ctx, createTransport,
		arg.ID,
		arg.Name,
		arg.FromAddress,
		arg.IsDefault,
		arg.CreatedAt,
	)
	return scanTransport(row)
}

const getTransport = `SELECT ` + transportColumns + ` FROM transports WHERE id = ?`

// GetTransport はIDでトランスポートを取得する。
func (q *Queries) GetTransport(ctx context.Context, id string) (Transport, error) {
	return scanTransport(q.db.QueryRowContext(ctx, getTransport, id))
}

const listTransports = `SELECT ` + transportColumns + ` FROM transports ORDER BY is_default DESC, name ASC`

// ListTransports は全トランスポートをデフォルト優先・名前順に返す。
func (q *Queries) ListTransports(ctx context.Context) ([]Transport, error) {
	rows, err := q.db.QueryContext(ctx, listTransports)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []Transport{}
	for rows.Next() {
		i, err := scanTransport(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

const deleteTransport = `DELETE FROM transports WHERE id = ?`

// DeleteTransport はトランスポートを削除し、削除件数を返す。
func (q *Queries) DeleteTransport(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteTransport, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const clearDefaultTransport = `UPDATE transports SET is_default = 0 WHERE is_default = 1`

// ClearDefaultTransport はデフォルト指定をすべて解除する。
func (q *Queries) ClearDefaultTransport(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, clearDefaultTransport)
	return err
}

const setDefaultTransport = `UPDATE transports SET is_default = 1 WHERE id = ?`

// SetDefaultTransport は指定トランスポートをデフォルトにし、更新件数を返す。
func (q *Queries) SetDefaultTransport(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, setDefaultTransport, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
