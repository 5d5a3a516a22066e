package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// TestMemoryOrdering は取り出し順を検証する。
func TestMemoryOrdering(t *testing.T) {
	t.Parallel()

	t.Run("優先度の高い順、同じ優先度は投入順に取り出されること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		ctx := context.Background()
		for _, j := range []Job{
			{ID: "low-1", Priority: 0},
			{ID: "high-1", Priority: 10},
			{ID: "low-2", Priority: 0},
			{ID: "high-2", Priority: 10},
			{ID: "mid", Priority: 5},
		} {
			if err := q.Enqueue(ctx, j); err != nil {
				t.Fatalf("Enqueue(%s)でエラーが発生: %v", j.ID, err)
			}
		}

		want := []string{"high-1", "high-2", "mid", "low-1", "low-2"}
		for _, id := range want {
			got, err := q.Dequeue(ctx)
			if err != nil {
				t.Fatalf("Dequeue()でエラーが発生: %v", err)
			}
			if got.ID != id {
				t.Errorf("Dequeue() = %s, want %s", got.ID, id)
			}
		}
	})

	t.Run("同じIDの重複投入はErrDuplicateになること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		ctx := context.Background()
		if err := q.Enqueue(ctx, Job{ID: "a"}); err != nil {
			t.Fatalf("Enqueue()でエラーが発生: %v", err)
		}
		if err := q.Enqueue(ctx, Job{ID: "a", Priority: 3}); !errors.Is(err, ErrDuplicate) {
			t.Errorf("error = %v, want ErrDuplicate", err)
		}

		if _, err := q.Dequeue(ctx); err != nil {
			t.Fatalf("Dequeue()でエラーが発生: %v", err)
		}
		if err := q.Enqueue(ctx, Job{ID: "a"}); err != nil {
			t.Errorf("取り出し後の再投入でエラーが発生: %v", err)
		}
	})

	t.Run("ペイロードがそのまま渡されること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		ctx := context.Background()
		if err := q.Enqueue(ctx, Job{ID: "a", Payload: []byte("hello")}); err != nil {
			t.Fatalf("Enqueue()でエラーが発生: %v", err)
		}
		got, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue()でエラーが発生: %v", err)
		}
		if string(got.Payload) != "hello" || got.EnqueuedAt.IsZero() {
			t.Errorf("Dequeue() = %+v", got)
		}
	})
}

// TestMemoryBlocking は待機と解放を検証する。
func TestMemoryBlocking(t *testing.T) {
	t.Parallel()

	t.Run("ctxの終了で待機が解除されること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want DeadlineExceeded", err)
		}
	})

	t.Run("Closeで待機が解除されること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		done := make(chan error, 1)
		go func() {
			_, err := q.Dequeue(context.Background())
			done <- err
		}()

		time.Sleep(10 * time.Millisecond)
		if err := q.Close(); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}
		select {
		case err := <-done:
			if !errors.Is(err, ErrClosed) {
				t.Errorf("error = %v, want ErrClosed", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Close()後もDequeue()が戻らない")
		}
		if err := q.Enqueue(context.Background(), Job{ID: "x"}); !errors.Is(err, ErrClosed) {
			t.Errorf("Close()後のEnqueue(): error = %v, want ErrClosed", err)
		}
	})

	t.Run("複数の待機者すべてにジョブが行き渡ること", func(t *testing.T) {
		t.Parallel()

		q := NewMemory()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		const workers = 4
		var wg sync.WaitGroup
		got := make(chan string, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				job, err := q.Dequeue(ctx)
				if err != nil {
					t.Errorf("Dequeue()でエラーが発生: %v", err)
					return
				}
				got <- job.ID
			}()
		}

		time.Sleep(10 * time.Millisecond)
		for _, id := range []string{"a", "b", "c", "d"} {
			if err := q.Enqueue(ctx, Job{ID: id}); err != nil {
				t.Fatalf("Enqueue()でエラーが発生: %v", err)
			}
		}
		wg.Wait()
		close(got)

		seen := map[string]bool{}
		for id := range got {
			seen[id] = true
		}
		if len(seen) != workers {
			t.Errorf("取り出されたジョブ: %v", seen)
		}
		if n, _ := q.Len(ctx); n != 0 {
			t.Errorf("Len() = %d, want 0", n)
		}
	})
}
