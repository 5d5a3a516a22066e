package queue

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// Memory はプロセス内のヒープで実装したQueue。再起動でジョブは失われる。
type Memory struct {
	mu     sync.Mutex
	items  jobHeap
	index  map[string]struct{}
	seq    uint64
	notify chan struct{}

	closed    chan struct{}
	closeOnce sync.Once
}

// NewMemory は新しいMemoryキューを生成する。
func NewMemory() *Memory {
	return &Memory{
		index:  make(map[string]struct{}),
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// Enqueue はジョブを投入する。
func (m *Memory) Enqueue(_ context.Context, job Job) error {
	select {
	case <-m.closed:
		return ErrClosed
	default:
	}

	m.mu.Lock()
	if _, ok := m.index[job.ID]; ok {
		m.mu.Unlock()
		return ErrDuplicate
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	m.seq++
	heap.Push(&m.items, &entry{job: job, seq: m.seq})
	m.index[job.ID] = struct{}{}
	m.mu.Unlock()

	m.signal()
	return nil
}

// Dequeue は最も優先度の高いジョブを取り出す。
func (m *Memory) Dequeue(ctx context.Context) (Job, error) {
	for {
		m.mu.Lock()
		if m.items.Len() > 0 {
			e := heap.Pop(&m.items).(*entry)
			delete(m.index, e.job.ID)
			remaining := m.items.Len()
			m.mu.Unlock()

			// 残りがあれば他の待機者を起こす
			if remaining > 0 {
				m.signal()
			}
			return e.job, nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-m.closed:
			return Job{}, ErrClosed
		case <-m.notify:
		}
	}
}

// Len はキュー内のジョブ数を返す。
func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.items.Len(), nil
}

// Close はキューを閉じる。
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.closed) })
	return nil
}

func (m *Memory) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// entry はヒープの要素。seqは同じ優先度内のFIFO順を保つ。
type entry struct {
	job Job
	seq uint64
}

type jobHeap []*entry

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool {
	if h[i].job.Priority != h[j].job.Priority {
		return h[i].job.Priority > h[j].job.Priority
	}
	return h[i].seq < h[j].seq
}

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
