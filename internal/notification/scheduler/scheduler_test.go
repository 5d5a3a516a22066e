package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/nao1215/notifly/internal/notification/db"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/queue"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

func setupLedger(t *testing.T) *ledger.Ledger {
	t.Helper()

	conn, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("DB接続に失敗: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = conn.Close() })

	if err := db.Migrate(context.Background(), conn, zap.NewNop()); err != nil {
		t.Fatalf("マイグレーションに失敗: %v", err)
	}
	return ledger.New(conn, zap.NewNop())
}

func schedule(t *testing.T, l *ledger.Ledger, email string, at time.Time, priority int) *ledger.Record {
	t.Helper()

	rec, err := l.Create(context.Background(), ledger.NewRecord{
		RecipientEmail: email,
		Status:         ledger.StatusScheduled,
		ScheduleTime:   &at,
		Priority:       priority,
		BlueprintRef:   "welcome",
	})
	if err != nil {
		t.Fatalf("Create()でエラーが発生: %v", err)
	}
	return rec
}

// failingQueue は常に投入に失敗するキュー。
type failingQueue struct {
	queue.Queue
}

func (failingQueue) Enqueue(context.Context, queue.Job) error {
	return errors.New("redis unavailable")
}

// TestRunOnce は1回分の取得と投入を検証する。
func TestRunOnce(t *testing.T) {
	t.Parallel()

	t.Run("期日を過ぎたレコードだけが上限件数まで投入されること", func(t *testing.T) {
		t.Parallel()
		l := setupLedger(t)
		q := queue.NewMemory()
		t.Cleanup(func() { _ = q.Close() })
		ctx := context.Background()

		now := time.Now()
		first := schedule(t, l, "a@example.com", now.Add(-3*time.Minute), 0)
		second := schedule(t, l, "b@example.com", now.Add(-2*time.Minute), 0)
		third := schedule(t, l, "c@example.com", now.Add(-1*time.Minute), 0)
		future := schedule(t, l, "d@example.com", now.Add(time.Hour), 0)

		s, err := New(l, q, metrics.New(), zap.NewNop(), Config{BatchLimit: 2})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}

		n, err := s.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce()でエラーが発生: %v", err)
		}
		if n != 2 {
			t.Fatalf("RunOnce() = %d, want 2", n)
		}
		for _, want := range []string{first.ID, second.ID} {
			job, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("Dequeue()でエラーが発生: %v", err)
			}
			if job.ID != want {
				t.Errorf("Dequeue() = %s, want %s", job.ID, want)
			}
		}

		n, err = s.RunOnce(ctx)
		if err != nil || n != 1 {
			t.Fatalf("2回目のRunOnce() = %d, %v, want 1", n, err)
		}
		job, _ := q.Dequeue(ctx)
		if job.ID != third.ID {
			t.Errorf("Dequeue() = %s, want %s", job.ID, third.ID)
		}

		got, err := l.Get(ctx, future.ID)
		if err != nil {
			t.Fatalf("Get()でエラーが発生: %v", err)
		}
		if got.Status != ledger.StatusScheduled {
			t.Errorf("未来のレコードの状態 = %v, want SCHEDULED", got.Status)
		}
	})

	t.Run("保存された優先度でキューに投入されること", func(t *testing.T) {
		t.Parallel()
		l := setupLedger(t)
		q := queue.NewMemory()
		t.Cleanup(func() { _ = q.Close() })
		ctx := context.Background()

		now := time.Now()
		schedule(t, l, "low@example.com", now.Add(-2*time.Minute), 1)
		high := schedule(t, l, "high@example.com", now.Add(-1*time.Minute), 9)

		s, _ := New(l, q, nil, zap.NewNop(), Config{})
		if _, err := s.RunOnce(ctx); err != nil {
			t.Fatalf("RunOnce()でエラーが発生: %v", err)
		}
		job, _ := q.Dequeue(ctx)
		if job.ID != high.ID || job.Priority != 9 {
			t.Errorf("Dequeue() = %+v, want 優先度9のレコード", job)
		}
	})

	t.Run("投入に失敗してもレコードはQUEUEDのまま残ること", func(t *testing.T) {
		t.Parallel()
		l := setupLedger(t)
		ctx := context.Background()

		rec := schedule(t, l, "a@example.com", time.Now().Add(-time.Minute), 0)
		s, _ := New(l, failingQueue{}, metrics.New(), zap.NewNop(), Config{})

		n, err := s.RunOnce(ctx)
		if err != nil {
			t.Fatalf("RunOnce()でエラーが発生: %v", err)
		}
		if n != 0 {
			t.Errorf("RunOnce() = %d, want 0", n)
		}
		queued, _ := l.ListQueued(ctx)
		if len(queued) != 1 || queued[0].ID != rec.ID {
			t.Errorf("ListQueued() = %v", queued)
		}
	})
}

// TestScheduler は周期実行と設定の検証を確認する。
func TestScheduler(t *testing.T) {
	t.Parallel()

	t.Run("不正なcron式はエラーになること", func(t *testing.T) {
		t.Parallel()
		if _, err := New(setupLedger(t), queue.NewMemory(), nil, zap.NewNop(), Config{Spec: "every minute"}); err == nil {
			t.Error("New()がエラーを返すべきだが、nilが返った")
		}
	})

	t.Run("周期実行で予約レコードが投入されること", func(t *testing.T) {
		t.Parallel()
		l := setupLedger(t)
		q := queue.NewMemory()
		t.Cleanup(func() { _ = q.Close() })
		ctx := context.Background()

		rec := schedule(t, l, "a@example.com", time.Now().Add(-time.Minute), 0)
		s, err := New(l, q, nil, zap.NewNop(), Config{Spec: "@every 1s"})
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if err := s.Start(ctx); err != nil {
			t.Fatalf("Start()でエラーが発生: %v", err)
		}

		dequeueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		job, err := q.Dequeue(dequeueCtx)
		if err != nil {
			t.Fatalf("Dequeue()でエラーが発生: %v", err)
		}
		if job.ID != rec.ID {
			t.Errorf("Dequeue() = %s, want %s", job.ID, rec.ID)
		}

		if err := s.Stop(ctx); err != nil {
			t.Errorf("Stop()でエラーが発生: %v", err)
		}
	})
}
