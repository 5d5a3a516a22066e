package queue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// priorityWeight は優先度1段あたりのスコア幅。シーケンス番号がこれを超えない限り順序が保たれる。
const priorityWeight = 1e12

// Redis はRedisのソート済みセットで実装したQueue。
// スコアは「優先度の符号反転 × 重み + 投入シーケンス」で、ZPOPMINが優先度降順・FIFOで取り出す。
type Redis struct {
	client      redis.Cmdable
	prefix      string
	pollTimeout time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

// RedisOption はRedisキューの設定。
type RedisOption func(*Redis)

// WithPollTimeout はBZPOPMINの待機時間を設定する。ctxの終了はこの間隔で検知される。
func WithPollTimeout(d time.Duration) RedisOption {
	return func(r *Redis) { r.pollTimeout = d }
}

// NewRedis は新しいRedisキューを生成する。prefixはキー名の接頭辞。
// Redisクライアントのライフサイクルは呼び出し側が管理する。
func NewRedis(client redis.Cmdable, prefix string, opts ...RedisOption) *Redis {
	if prefix == "" {
		prefix = "notifly"
	}
	r := &Redis{
		client:      client,
		prefix:      prefix,
		pollTimeout: time.Second,
		closed:      make(chan struct{}),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Redis) queueKey() string   { return r.prefix + ":queue" }
func (r *Redis) payloadKey() string { return r.prefix + ":payload" }
func (r *Redis) seqKey() string     { return r.prefix + ":seq" }

// score はジョブのスコアを計算する。小さいほど先に取り出される。
func score(priority int, seq int64) float64 {
	// 範囲外は端に寄せる
	if priority > MaxPriority {
		priority = MaxPriority
	}
	if priority < MinPriority {
		priority = MinPriority
	}
	return float64(-priority)*priorityWeight + float64(seq)
}

// Enqueue はジョブを投入する。
func (r *Redis) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-r.closed:
		return ErrClosed
	default:
	}

	seq, err := r.client.Incr(ctx, r.seqKey()).Result()
	if err != nil {
		return fmt.Errorf("シーケンス番号の取得に失敗: %w", err)
	}

	var added *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		added = pipe.ZAddNX(ctx, r.queueKey(), redis.Z{Score: score(job.Priority, seq), Member: job.ID})
		if len(job.Payload) > 0 {
			pipe.HSetNX(ctx, r.payloadKey(), job.ID, job.Payload)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ジョブの投入に失敗: %w", err)
	}
	if added.Val() == 0 {
		return ErrDuplicate
	}
	return nil
}

// Dequeue は最も優先度の高いジョブを取り出す。
func (r *Redis) Dequeue(ctx context.Context) (Job, error) {
	for {
		select {
		case <-ctx.Done():
			return Job{}, ctx.Err()
		case <-r.closed:
			return Job{}, ErrClosed
		default:
		}

		res, err := r.client.BZPopMin(ctx, r.pollTimeout, r.queueKey()).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Job{}, ctx.Err()
			}
			return Job{}, fmt.Errorf("ジョブの取り出しに失敗: %w", err)
		}

		id, ok := res.Member.(string)
		if !ok {
			continue
		}
		job := Job{ID: id, Priority: priorityFromScore(res.Score)}

		var payload *redis.StringCmd
		_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			payload = pipe.HGet(ctx, r.payloadKey(), id)
			pipe.HDel(ctx, r.payloadKey(), id)
			return nil
		})
		if err != nil && !errors.Is(err, redis.Nil) {
			return Job{}, fmt.Errorf("ペイロードの取得に失敗: %w", err)
		}
		if b, err := payload.Bytes(); err == nil {
			job.Payload = b
		}
		return job, nil
	}
}

// priorityFromScore はスコアから優先度を復元する。
// シーケンスは1以上priorityWeight未満なので、-score/priorityWeightは(p-1, p]に収まる。
func priorityFromScore(s float64) int {
	return int(math.Ceil(-s / priorityWeight))
}

// Len はキュー内のジョブ数を返す。
func (r *Redis) Len(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("キュー長の取得に失敗: %w", err)
	}
	return int(n), nil
}

// Close はキューを閉じる。Redisクライアントは閉じない。
func (r *Redis) Close() error {
	r.closeOnce.Do(func() { close(r.closed) })
	return nil
}
