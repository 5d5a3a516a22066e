// Package scheduler は予約配信の期日到来を監視し、レコードをキューへ投入する。
//
// 周期実行にはcron式を使い、前回の実行が終わっていない場合は次の実行を飛ばす。
// アクティブなスケジューラは1つだけであることを前提とするが、
// 取得はledger上の条件付き更新で行うため同じレコードが二重に投入されることはない。
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"

	cronlib "github.com/robfig/cron/v3"

	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/queue"
	"go.uber.org/zap"
)

// DefaultSpec は実行間隔の既定値。
const DefaultSpec = "@every 1m"

// DefaultBatchLimit は1回の実行で取得するレコード数の既定値。
const DefaultBatchLimit = 5

// cronParser は5フィールドのcron式と "@every 30s" などの記述子を受け付ける。
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// Config はスケジューラの設定。
type Config struct {
	// Spec は実行間隔のcron式。空の場合はDefaultSpec。
	Spec string
	// BatchLimit は1回の実行で取得する最大件数。1未満の場合はDefaultBatchLimit。
	BatchLimit int
}

// Scheduler は期日を過ぎた予約レコードを定期的にキューへ投入する。
type Scheduler struct {
	ledger  *ledger.Ledger
	queue   queue.Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     Config

	mu     sync.Mutex
	cron   *cronlib.Cron
	cancel context.CancelFunc
}

// New は新しいSchedulerを生成する。cron式が不正な場合はエラーを返す。
func New(l *ledger.Ledger, q queue.Queue, m *metrics.Metrics, logger *zap.Logger, cfg Config) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultSpec
	}
	if cfg.BatchLimit < 1 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if _, err := cronParser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("cron式 %q が不正です: %w", cfg.Spec, err)
	}
	return &Scheduler{
		ledger:  l,
		queue:   q,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}, nil
}

// Start は周期実行を開始する。
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return errors.New("スケジューラは既に起動しています")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c := cronlib.New(
		cronlib.WithParser(cronParser),
		cronlib.WithLogger(cronLogger{logger: s.logger}),
		cronlib.WithChain(cronlib.SkipIfStillRunning(cronLogger{logger: s.logger})),
	)
	if _, err := c.AddFunc(s.cfg.Spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("ジョブの登録に失敗: %w", err)
	}
	c.Start()

	s.cron = c
	s.cancel = cancel
	s.logger.Info("スケジューラを起動しました",
		zap.String("spec", s.cfg.Spec),
		zap.Int("batch_limit", s.cfg.BatchLimit),
	)
	return nil
}

// Stop は周期実行を止め、実行中のサイクルの終了を待つ。
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	done := c.Stop()
	select {
	case <-done.Done():
		cancel()
		s.logger.Info("スケジューラを停止しました")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("予約配信の処理に失敗しました", zap.Error(err))
	}
}

// RunOnce は期日を過ぎた予約レコードを最大BatchLimit件取得してキューへ投入し、投入件数を返す。
// 投入は予約日時の順に行い、各レコードに保存された優先度を使う。
// 投入に失敗したレコードはQUEUEDのまま残り、ワーカーの起動時復元で再投入される。
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	records, err := s.ledger.FindDueScheduled(ctx, s.cfg.BatchLimit)
	if err != nil {
		return 0, err
	}
	s.metrics.AddScheduledClaims(len(records))

	enqueued := 0
	for _, rec := range records {
		err := s.queue.Enqueue(ctx, queue.Job{ID: rec.ID, Priority: rec.Priority})
		if err != nil && !errors.Is(err, queue.ErrDuplicate) {
			s.metrics.IncEnqueueFailures()
			s.logger.Error("キューへの投入に失敗しました",
				zap.String("record_id", rec.ID),
				zap.Error(err),
			)
			continue
		}
		enqueued++
	}

	if len(records) > 0 {
		s.logger.Info("予約配信をキューへ投入しました",
			zap.Int("claimed", len(records)),
			zap.Int("enqueued", enqueued),
		)
	}
	return enqueued, nil
}

// cronLogger はcronのログをzapへ出力する。
type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
