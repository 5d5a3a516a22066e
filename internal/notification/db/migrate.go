package db

import (
	"context"
	"database/sql"
	"embed"

	"github.com/nao1215/notifly/pkg/migration"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate はembedされたマイグレーションを適用してスキーマを最新化する。
func Migrate(ctx context.Context, conn *sql.DB, logger *zap.Logger) error {
	return migration.Run(ctx, conn, migrationsFS, "migrations", logger)
}
