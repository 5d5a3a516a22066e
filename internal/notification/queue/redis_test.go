package queue

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// setupRedis はREDIS_ADDRが設定されている場合のみRedisキューを作成する。
func setupRedis(t *testing.T) *Redis {
	t.Helper()

	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDRが未設定のためスキップ")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redisに接続できないためスキップ: %v", err)
	}

	prefix := "notifly-test-" + uuid.New().String()
	q := NewRedis(client, prefix, WithPollTimeout(100*time.Millisecond))
	t.Cleanup(func() {
		_ = q.Close()
		_ = client.Del(context.Background(), q.queueKey(), q.payloadKey(), q.seqKey()).Err()
	})
	return q
}

// TestScore はスコア計算と優先度の復元を検証する。
func TestScore(t *testing.T) {
	t.Parallel()

	for _, p := range []int{-5, 0, 1, 10, MaxPriority, MinPriority} {
		s := score(p, 12345)
		if got := priorityFromScore(s); got != p {
			t.Errorf("priorityFromScore(score(%d)) = %d", p, got)
		}
	}
	if score(10, 2) >= score(9, 1) {
		t.Error("優先度の高いジョブのスコアが小さくなっていない")
	}
	if score(3, 1) >= score(3, 2) {
		t.Error("同じ優先度で先に投入したジョブのスコアが小さくなっていない")
	}
	if score(MaxPriority+50, 1) != score(MaxPriority, 1) {
		t.Error("上限を超える優先度が丸められていない")
	}
}

// TestRedisQueue はRedisキューの取り出し順を検証する。
func TestRedisQueue(t *testing.T) {
	t.Parallel()

	q := setupRedis(t)
	ctx := context.Background()

	for _, j := range []Job{
		{ID: "low", Priority: 0},
		{ID: "high", Priority: 10, Payload: []byte("p")},
		{ID: "low-2", Priority: 0},
	} {
		if err := q.Enqueue(ctx, j); err != nil {
			t.Fatalf("Enqueue(%s)でエラーが発生: %v", j.ID, err)
		}
	}
	if err := q.Enqueue(ctx, Job{ID: "low"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("error = %v, want ErrDuplicate", err)
	}
	if n, err := q.Len(ctx); err != nil || n != 3 {
		t.Errorf("Len() = %d, %v", n, err)
	}

	first, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue()でエラーが発生: %v", err)
	}
	if first.ID != "high" || first.Priority != 10 || string(first.Payload) != "p" {
		t.Errorf("Dequeue() = %+v", first)
	}
	for _, want := range []string{"low", "low-2"} {
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue()でエラーが発生: %v", err)
		}
		if got.ID != want {
			t.Errorf("Dequeue() = %s, want %s", got.ID, want)
		}
	}

	timeout, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel()
	if _, err := q.Dequeue(timeout); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("空のキュー: error = %v, want DeadlineExceeded", err)
	}
}
