package notification

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/nao1215/notifly/internal/notification/db"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// sqliteParams は接続ごとに適用するプラグマ。modernc.org/sqliteの_pragma形式で指定する。
// 書き込みトランザクションはBEGIN IMMEDIATEで開始し、ロック昇格時の即時SQLITE_BUSYを避ける。
const sqliteParams = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"

// dataSourceName はデータベースファイルのパスに接続パラメータを付与する。
func dataSourceName(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + sqliteParams
}

// openDatabase はSQLiteデータベースを開き、マイグレーションを適用する。
// WALモードとビジータイムアウトを指定し、ワーカーとHTTPハンドラからの同時書き込みに備える。
func openDatabase(ctx context.Context, path string, logger *zap.Logger) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dataSourceName(path))
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("データベース接続の確認に失敗: %w", err)
	}

	if err := db.Migrate(ctx, conn, logger); err != nil {
		conn.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return conn, nil
}
