package notification

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nao1215/notifly/internal/notification/ledger"
	"go.uber.org/zap"
)

// TestOpenDatabase はファイルDBに接続パラメータが適用されることを検証する。
func TestOpenDatabase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	conn, err := openDatabase(ctx, filepath.Join(t.TempDir(), "notification.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("openDatabase()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	t.Run("WALモードとビジータイムアウトが有効であること", func(t *testing.T) {
		var mode string
		if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_modeの取得でエラーが発生: %v", err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want %q", mode, "wal")
		}

		var timeout int
		if err := conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("busy_timeoutの取得でエラーが発生: %v", err)
		}
		if timeout != 5000 {
			t.Errorf("busy_timeout = %d, want %d", timeout, 5000)
		}
	})

	t.Run("複数接続からの同時書き込みがすべて成功すること", func(t *testing.T) {
		l := ledger.New(conn, zap.NewNop())

		const writers, perWriter = 8, 10
		errs := make(chan error, writers*perWriter)
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < perWriter; i++ {
					_, err := l.CreateBatch(ctx, []ledger.NewRecord{
						{RecipientEmail: fmt.Sprintf("w%d-%d@example.com", w, i), ResourceID: "r", BlueprintRef: "bp", Status: ledger.StatusQueued},
						{RecipientEmail: fmt.Sprintf("w%d-%d-cc@example.com", w, i), ResourceID: "r", BlueprintRef: "bp", Status: ledger.StatusQueued},
					})
					if err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("CreateBatch()でエラーが発生: %v", err)
		}

		page, err := l.List(ctx, ledger.Query{ResourceID: "r", Limit: 1})
		if err != nil {
			t.Fatalf("List()でエラーが発生: %v", err)
		}
		if page.Total != writers*perWriter*2 {
			t.Errorf("Total = %d, want %d", page.Total, writers*perWriter*2)
		}
	})
}
