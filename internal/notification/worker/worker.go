// Package worker はキューから配信ジョブを取り出して送信するワーカープールを提供する。
//
// ワーカーは取り出したレコードを処理中へ遷移させ、未レンダリングであればレンダリングし、
// Senderを呼び出して結果をledgerに記録する。自動リトライは行わない。
// 失敗したレコードは運用者の再送操作でのみ再投入される。
package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/notifly/internal/notification/blueprint"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/queue"
	"github.com/nao1215/notifly/internal/notification/sender"
	"github.com/nao1215/notifly/internal/notification/template"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Renderer は配信レコードの件名と本文をレンダリングする。
type Renderer interface {
	Render(ctx context.Context, req blueprint.RenderRequest) (template.Rendered, error)
}

// Config はワーカープールの設定。
type Config struct {
	// Concurrency は同時に処理するワーカー数。1未満の場合は1。
	Concurrency int
	// SendTimeout はSender呼び出しのタイムアウト。0以下の場合はDefaultSendTimeout。
	SendTimeout time.Duration
	// RatePerSecond は1秒あたりの送信上限。0以下の場合は無制限。
	RatePerSecond float64
	// TrackingBaseURL は開封計測URLの組み立てに使う公開URL。空の場合は計測URLを付与しない。
	TrackingBaseURL string
}

// DefaultSendTimeout はSender呼び出しのタイムアウトの既定値。
const DefaultSendTimeout = 30 * time.Second

// Outcome はジョブ処理の結果。
type Outcome string

const (
	// OutcomeCompleted は送信に成功したことを表す。
	OutcomeCompleted = Outcome(ledger.StatusCompleted)
	// OutcomeFailed は送信またはレンダリングに失敗したことを表す。
	OutcomeFailed = Outcome(ledger.StatusFailed)
	// OutcomeNotFound はブループリントまたはプレースホルダが見つからなかったことを表す。
	OutcomeNotFound = Outcome(ledger.StatusNotFound)
	// OutcomeSkipped はレコードがキュー投入済みでなかったため処理しなかったことを表す。
	OutcomeSkipped Outcome = "skipped"
)

// Pool は配信ジョブを並行に処理するワーカープール。
type Pool struct {
	queue      queue.Queue
	ledger     *ledger.Ledger
	renderer   Renderer
	sender     sender.Sender
	transports *sender.TransportConfig
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        Config
	limiter    *rate.Limiter

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New は新しいPoolを生成する。
func New(
	q queue.Queue,
	l *ledger.Ledger,
	renderer Renderer,
	s sender.Sender,
	transports *sender.TransportConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	limit := rate.Inf
	burst := 0
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
		burst = max(1, int(cfg.RatePerSecond))
	}
	return &Pool{
		queue:      q,
		ledger:     l,
		renderer:   renderer,
		sender:     s,
		transports: transports,
		metrics:    m,
		logger:     logger,
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, burst),
	}
}

// Start はキュー投入済みのレコードを再投入したうえでワーカーを起動する。
// メモリキューは再起動で失われるため、ledger上のQUEUEDを正として復元する。
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("ワーカープールは既に起動しています")
	}

	recovered, err := p.recover(ctx)
	if err != nil {
		return err
	}

	// ワーカーの寿命は呼び出し元のctxから切り離し、Stopでのみ終了させる
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.started = true

	for i := range p.cfg.Concurrency {
		p.wg.Add(1)
		go p.run(runCtx, i)
	}

	p.logger.Info("ワーカープールを起動しました",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Int("recovered", recovered),
	)
	return nil
}

// recover はledger上のQUEUEDレコードをキューへ投入し、投入件数を返す。
func (p *Pool) recover(ctx context.Context) (int, error) {
	records, err := p.ledger.ListQueued(ctx)
	if err != nil {
		return 0, fmt.Errorf("キュー投入済みレコードの復元に失敗: %w", err)
	}
	n := 0
	for _, rec := range records {
		err := p.queue.Enqueue(ctx, queue.Job{ID: rec.ID, Priority: rec.Priority})
		switch {
		case err == nil:
			n++
		case errors.Is(err, queue.ErrDuplicate):
			// Redisキューには前回の投入が残っている
		default:
			return n, fmt.Errorf("レコード %s の再投入に失敗: %w", rec.ID, err)
		}
	}
	return n, nil
}

// Stop はワーカーに停止を指示し、処理中のジョブの完了を待つ。
// ctxが先に終了した場合はctx.Err()を返す。
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	p.cancel()
	p.started = false
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("ワーカープールを停止しました")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run は1つのワーカーのループ。Dequeueがctx終了またはキュー閉鎖で失敗するまで続く。
func (p *Pool) run(ctx context.Context, workerID int) {
	defer p.wg.Done()

	for {
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, queue.ErrClosed) {
				return
			}
			p.logger.Error("ジョブの取り出しに失敗しました", zap.Int("worker", workerID), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		// 取り出したジョブはStopされても最後まで処理する
		p.Process(context.WithoutCancel(ctx), job)
		p.reportDepth(ctx)
	}
}

func (p *Pool) reportDepth(ctx context.Context) {
	n, err := p.queue.Len(ctx)
	if err != nil {
		return
	}
	p.metrics.SetQueueDepth(n)
}

// Process は1件のジョブを処理し、結果を返す。
// 処理中のエラーは呼び出し元へ返さず、ledgerの状態とログに記録する。
func (p *Pool) Process(ctx context.Context, job queue.Job) Outcome {
	outcome := p.process(ctx, job)
	if outcome != OutcomeSkipped {
		p.metrics.RecordOutcome(string(outcome))
	}
	return outcome
}

func (p *Pool) process(ctx context.Context, job queue.Job) Outcome {
	logger := p.logger.With(zap.String("record_id", job.ID))

	rec, err := p.ledger.MarkProcessing(ctx, job.ID)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidTransition) || errors.Is(err, ledger.ErrNotFound) {
			// キャンセル・一時停止・削除されたレコードは送らない
			logger.Info("キュー投入済みでないためスキップしました", zap.Error(err))
			return OutcomeSkipped
		}
		// ledgerが一時的に更新できない場合、レコードはQUEUEDのまま残るのでジョブを戻す
		logger.Warn("処理中への遷移に失敗したためジョブを再投入します", zap.Error(err))
		p.requeue(ctx, logger, job)
		return OutcomeSkipped
	}

	rendered, err := p.render(ctx, rec)
	if err != nil {
		var missing *template.MissingPlaceholdersError
		if errors.As(err, &missing) || errors.Is(err, blueprint.ErrNotFound) {
			logger.Warn("ブループリントまたはプレースホルダが見つかりません", zap.Error(err))
			p.finish(ctx, logger, rec.ID, p.ledger.MarkNotFound)
			return OutcomeNotFound
		}
		logger.Error("レンダリングに失敗しました", zap.Error(err))
		p.finish(ctx, logger, rec.ID, p.ledger.MarkFailed)
		return OutcomeFailed
	}

	msg := sender.Message{
		RecordID:         rec.ID,
		Attempt:          len(rec.SentTimes) + 1,
		To:               rec.RecipientEmail,
		Cc:               rec.Cc,
		Bcc:              rec.Bcc,
		Subject:          rendered.Subject,
		Body:             rendered.Body,
		Transport:        p.transports.Select(rec.Transport),
		TrackingPixelURL: p.trackingPixelURL(rec.ID),
	}
	if err := p.send(ctx, msg); err != nil {
		logger.Error("送信に失敗しました", zap.Error(err))
		p.finish(ctx, logger, rec.ID, p.ledger.MarkFailed)
		return OutcomeFailed
	}

	p.finish(ctx, logger, rec.ID, p.ledger.MarkCompleted)
	logger.Info("送信が完了しました", zap.String("to", rec.RecipientEmail))
	return OutcomeCompleted
}

// render はレンダリング済みの内容があればそれを返し、無ければレンダリングして保存する。
func (p *Pool) render(ctx context.Context, rec *ledger.Record) (template.Rendered, error) {
	if rec.HasRendered() {
		return rec.Rendered(), nil
	}
	rendered, err := p.renderer.Render(ctx, blueprint.RenderRequest{
		BlueprintRef: rec.BlueprintRef,
		ResourceName: rec.ResourceName,
		Values:       rec.PlaceValues,
	})
	if err != nil {
		return template.Rendered{}, err
	}
	if err := p.ledger.SetRendered(ctx, rec.ID, rendered); err != nil {
		// 保存に失敗しても送信は続ける。再送時に再レンダリングされるだけ
		p.logger.Warn("レンダリング結果の保存に失敗しました", zap.String("record_id", rec.ID), zap.Error(err))
	}
	return rendered, nil
}

// send はレート制限のもとでSenderを呼び出す。
// タイムアウトはSender呼び出しだけに掛け、レート待ちの時間は含めない。
func (p *Pool) send(ctx context.Context, msg sender.Message) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("送信レートの待機に失敗: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	start := time.Now()
	err := p.sender.Send(sendCtx, msg)
	p.metrics.ObserveSend(time.Since(start))
	if err != nil {
		return err
	}
	// Senderがctxを無視して戻った場合もタイムアウトとして扱う
	if errors.Is(sendCtx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("送信がタイムアウトしました: %w", sendCtx.Err())
	}
	return nil
}

// ledger更新の一時的な失敗に対する再試行の回数と間隔。
var (
	finishAttempts   = 3
	ledgerRetryDelay = 100 * time.Millisecond
)

// finish は処理中のレコードを終了状態へ遷移させる。
// 送信中にキャンセル・一時停止されたレコードはその状態を優先し、結果で上書きしない。
func (p *Pool) finish(ctx context.Context, logger *zap.Logger, id string, mark func(context.Context, string) (*ledger.Record, error)) {
	for attempt := 1; ; attempt++ {
		_, err := mark(ctx, id)
		if err == nil {
			return
		}

		var te *ledger.TransitionError
		switch {
		case errors.As(err, &te) && (te.From == ledger.StatusCancelled || te.From == ledger.StatusPaused):
			logger.Info("処理中に状態が変更されたため結果を記録しません",
				zap.String("status", string(te.From)),
				zap.String("result", string(te.To)),
			)
			return
		case errors.Is(err, ledger.ErrInvalidTransition), errors.Is(err, ledger.ErrNotFound):
			logger.Warn("配信レコードの状態更新を中止しました", zap.Error(err))
			return
		case attempt >= finishAttempts:
			logger.Error("配信レコードの状態更新に失敗しました", zap.Int("attempts", attempt), zap.Error(err))
			return
		}

		logger.Warn("配信レコードの状態更新を再試行します", zap.Int("attempt", attempt), zap.Error(err))
		if !sleep(ctx, time.Duration(attempt)*ledgerRetryDelay) {
			return
		}
	}
}

// requeue は処理を始められなかったジョブを少し待ってからキューへ戻す。
func (p *Pool) requeue(ctx context.Context, logger *zap.Logger, job queue.Job) {
	if !sleep(ctx, ledgerRetryDelay) {
		return
	}
	if err := p.queue.Enqueue(ctx, job); err != nil && !errors.Is(err, queue.ErrDuplicate) {
		logger.Error("ジョブの再投入に失敗しました", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (p *Pool) trackingPixelURL(id string) string {
	if p.cfg.TrackingBaseURL == "" {
		return ""
	}
	return strings.TrimRight(p.cfg.TrackingBaseURL, "/") + "/tracking-pixel/" + id
}
