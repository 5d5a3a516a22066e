// 通知配信サービスのエントリポイント。
// ブループリントを使ったメッセージの下書き・予約・即時配信と、
// 開封・クリック計測をHTTPで提供する。
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/notifly/internal/config"
	"github.com/nao1215/notifly/internal/notification"
	"github.com/nao1215/notifly/pkg/logging"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "通知サービスの起動に失敗: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := notification.NewService(ctx, cfg, logger)
	if err != nil {
		logger.Error("通知サービスの初期化に失敗しました", zap.Error(err))
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("リソースの解放に失敗しました", zap.Error(err))
		}
	}()

	return svc.Run(ctx)
}
