package notification

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/nao1215/notifly/internal/config"
	"github.com/nao1215/notifly/internal/notification/blueprint"
	"github.com/nao1215/notifly/internal/notification/dispatcher"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/metrics"
	"github.com/nao1215/notifly/internal/notification/queue"
	"github.com/nao1215/notifly/internal/notification/scheduler"
	"github.com/nao1215/notifly/internal/notification/sender"
	"github.com/nao1215/notifly/internal/notification/worker"
	"github.com/nao1215/notifly/pkg/httpclient"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// shutdownTimeout はHTTPサーバーと送信ワーカーの停止を待つ上限。
const shutdownTimeout = 15 * time.Second

// Service は通知サービスを構成するコンポーネントをまとめて保持する。
type Service struct {
	cfg    *config.Config
	logger *zap.Logger

	conn      *sql.DB
	redis     *redis.Client
	queue     queue.Queue
	worker    *worker.Pool
	scheduler *scheduler.Scheduler
	server    *Server
}

// NewService は設定に従ってデータベース、キュー、送信経路、ワーカー、スケジューラ、
// HTTPサーバーを組み立てる。
func NewService(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	conn, err := openDatabase(ctx, cfg.DatabasePath, logger)
	if err != nil {
		return nil, err
	}

	svc := &Service{cfg: cfg, logger: logger, conn: conn}
	if err := svc.build(ctx); err != nil {
		svc.Close()
		return nil, err
	}
	return svc, nil
}

func (s *Service) build(ctx context.Context) error {
	cfg := s.cfg

	q, err := s.openQueue(ctx)
	if err != nil {
		return err
	}
	s.queue = q

	m := metrics.New()
	store := blueprint.NewStore(s.conn, s.logger)
	registry := blueprint.NewRegistry(s.conn, store, s.logger)
	renderer := blueprint.NewRenderer(store, registry, blueprint.WithBranding(blueprint.Branding{
		AppName:      cfg.AppName,
		AppLogo:      cfg.AppLogo,
		AppLink:      cfg.AppLink,
		PrimaryColor: cfg.PrimaryColor,
	}))
	l := ledger.New(s.conn, s.logger)

	transports := sender.NewTransportStore(s.conn, s.logger)
	transportConfig := sender.NewTransportConfig(transports, cfg.DefaultFromAddress, s.logger)
	if err := transportConfig.Reload(ctx); err != nil {
		return err
	}

	s.worker = worker.New(q, l, renderer, s.newSender(ctx), transportConfig, m, s.logger, worker.Config{
		Concurrency:     cfg.WorkerConcurrency,
		SendTimeout:     cfg.SendTimeout,
		RatePerSecond:   cfg.SendRatePerSecond,
		TrackingBaseURL: cfg.PublicBaseURL,
	})

	s.scheduler, err = scheduler.New(l, q, m, s.logger, scheduler.Config{
		Spec:       cfg.SchedulerSpec,
		BatchLimit: cfg.SchedulerBatchLimit,
	})
	if err != nil {
		return err
	}

	s.server = NewServer(Deps{
		Blueprints:      store,
		Automations:     registry,
		Ledger:          l,
		Dispatcher:      dispatcher.New(l, q, renderer, m, s.logger),
		Transports:      transports,
		TransportConfig: transportConfig,
		Metrics:         m,
		Logger:          s.logger,
	}, ServerConfig{
		JWTSecret:           cfg.JWTSecret,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		TrackingFallbackURL: cfg.TrackingFallbackURL,
	})
	return nil
}

// openQueue は設定に応じてインメモリまたはRedisのキューを生成する。
func (s *Service) openQueue(ctx context.Context) (queue.Queue, error) {
	if s.cfg.QueueBackend != config.QueueBackendRedis {
		return queue.NewMemory(), nil
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPassword,
		DB:       s.cfg.RedisDB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("Redisへの接続に失敗: %w", err)
	}
	s.logger.Info("Redisキューを使用します",
		zap.String("addr", s.cfg.RedisAddr),
		zap.String("prefix", s.cfg.RedisQueuePrefix),
	)
	return queue.NewRedis(s.redis, s.cfg.RedisQueuePrefix), nil
}

// newSender はメール中継サービスのURLが設定されていれば中継用のSenderを、
// そうでなければログに出力するだけのSenderを返す。
// 中継サービスに到達できなくても起動は続け、警告だけを出す。
func (s *Service) newSender(ctx context.Context) sender.Sender {
	if s.cfg.MailRelayURL == "" {
		s.logger.Warn("MAIL_RELAY_URLが未設定のため、メッセージはログにのみ出力されます")
		return sender.NewLogSender(s.logger)
	}

	// ワーカー全員が同じ中継先へ送るので、アイドル接続をワーカー数ぶん保持する
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = max(2, s.cfg.WorkerConcurrency)

	opts := []httpclient.Option{
		httpclient.WithHTTPClient(&http.Client{Transport: transport}),
		httpclient.WithTimeout(s.cfg.SendTimeout),
	}
	if s.cfg.MailRelayToken != "" {
		opts = append(opts, httpclient.WithBearerToken(s.cfg.MailRelayToken))
	}
	relay := sender.NewRelaySender(httpclient.New(s.cfg.MailRelayURL, opts...), s.logger)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := relay.Ping(pingCtx); err != nil {
		s.logger.Warn("メールリレーに接続できません。送信は失敗として記録されます", zap.Error(err))
	}
	return relay
}

// Handler はHTTPハンドラを返す。
func (s *Service) Handler() http.Handler {
	return s.server.Handler()
}

// Run は送信ワーカー、スケジューラ、HTTPサーバーを起動し、ctxがキャンセルされるまでブロックする。
// キャンセル後は受け付けを止めてから、処理中の送信の完了を待って停止する。
func (s *Service) Run(ctx context.Context) error {
	if err := s.worker.Start(ctx); err != nil {
		return err
	}
	if err := s.scheduler.Start(ctx); err != nil {
		s.stopWorker()
		return err
	}

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("", s.cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("通知サービスを起動します", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-errCh:
		if ok {
			runErr = fmt.Errorf("HTTPサーバーの起動に失敗: %w", err)
		}
	}

	s.logger.Info("通知サービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTPサーバーの停止に失敗しました", zap.Error(err))
	}
	if err := s.scheduler.Stop(shutdownCtx); err != nil {
		s.logger.Error("スケジューラの停止に失敗しました", zap.Error(err))
	}
	if err := s.worker.Stop(shutdownCtx); err != nil {
		s.logger.Error("送信ワーカーの停止に失敗しました", zap.Error(err))
	}
	return runErr
}

func (s *Service) stopWorker() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.worker.Stop(ctx); err != nil {
		s.logger.Error("送信ワーカーの停止に失敗しました", zap.Error(err))
	}
}

// Close はキューとデータベース接続を閉じる。Runの終了後に呼び出す。
func (s *Service) Close() error {
	var errs []error
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
