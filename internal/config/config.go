// Package config は通知サービスの設定を環境変数から読み込む。
//
// 起動ディレクトリに .env があれば先に読み込むが、既に設定されている環境変数は上書きしない。
// 各項目には既定値があり、数値や期間として解釈できない値は起動時のエラーになる。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// QueueBackend はジョブキューの実装を表す。
type QueueBackend string

const (
	// QueueBackendMemory はプロセス内のヒープを使う。
	QueueBackendMemory QueueBackend = "memory"
	// QueueBackendRedis はRedisのソート済みセットを使う。
	QueueBackendRedis QueueBackend = "redis"
)

// Config は通知サービスの設定。
type Config struct {
	Port               string
	DatabasePath       string
	JWTSecret          string
	CORSAllowedOrigins []string
	LogLevel           string
	LogFormat          string

	SchedulerSpec       string
	SchedulerBatchLimit int

	WorkerConcurrency int
	SendTimeout       time.Duration
	SendRatePerSecond float64

	QueueBackend     QueueBackend
	RedisAddr        string
	RedisPassword    string
	RedisDB          int
	RedisQueuePrefix string

	// MailRelayURL が空の場合はメッセージをログに出力するだけになる。
	MailRelayURL       string
	MailRelayToken     string
	DefaultFromAddress string

	PublicBaseURL       string
	TrackingFallbackURL string

	// アプリケーションの表示情報。すべてのメールのプレースホルダに差し込まれる。
	AppName      string
	AppLogo      string
	AppLink      string
	PrimaryColor string
}

// Load は環境変数（と .env）から設定を読み込む。
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".envの読み込みに失敗: %w", err)
	}
	return FromLookup(os.LookupEnv)
}

// FromLookup はlookupで取得した値から設定を組み立てる。
// 不正な値はまとめて1つのエラーとして返す。
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	r := reader{lookup: lookup}
	cfg := &Config{
		Port:                r.string("PORT", "8086"),
		DatabasePath:        r.string("DATABASE_PATH", "/data/notification.db"),
		JWTSecret:           r.string("JWT_SECRET", "dev-secret-key"),
		CORSAllowedOrigins:  r.list("CORS_ALLOWED_ORIGINS"),
		LogLevel:            r.string("LOG_LEVEL", "info"),
		LogFormat:           r.string("LOG_FORMAT", "json"),
		SchedulerSpec:       r.string("SCHEDULER_SPEC", "@every 1m"),
		SchedulerBatchLimit: r.int("SCHEDULER_BATCH_LIMIT", 5),
		WorkerConcurrency:   r.int("WORKER_CONCURRENCY", 4),
		SendTimeout:         r.duration("SEND_TIMEOUT", 30*time.Second),
		SendRatePerSecond:   r.float("SEND_RATE_PER_SECOND", 0),
		QueueBackend:        QueueBackend(strings.ToLower(r.string("QUEUE_BACKEND", string(QueueBackendMemory)))),
		RedisAddr:           r.string("REDIS_ADDR", "localhost:6379"),
		RedisPassword:       r.string("REDIS_PASSWORD", ""),
		RedisDB:             r.int("REDIS_DB", 0),
		RedisQueuePrefix:    r.string("REDIS_QUEUE_PREFIX", "notification"),
		MailRelayURL:        r.string("MAIL_RELAY_URL", ""),
		MailRelayToken:      r.string("MAIL_RELAY_TOKEN", ""),
		DefaultFromAddress:  r.string("DEFAULT_FROM_ADDRESS", "no-reply@example.com"),
		PublicBaseURL:       r.string("PUBLIC_BASE_URL", "http://localhost:8086"),
		TrackingFallbackURL: r.string("TRACKING_FALLBACK_URL", "https://example.com"),
		AppName:             r.string("APP_NAME", "Notifly"),
		AppLogo:             r.string("APP_LOGO", ""),
		AppLink:             r.string("APP_LINK", ""),
		PrimaryColor:        r.string("APP_PRIMARY_COLOR", ""),
	}

	switch cfg.QueueBackend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		r.errs = append(r.errs, fmt.Errorf("QUEUE_BACKEND %q は memory か redis を指定してください", cfg.QueueBackend))
	}
	if cfg.WorkerConcurrency < 1 {
		r.errs = append(r.errs, fmt.Errorf("WORKER_CONCURRENCY は1以上を指定してください: %d", cfg.WorkerConcurrency))
	}
	if cfg.SchedulerBatchLimit < 1 {
		r.errs = append(r.errs, fmt.Errorf("SCHEDULER_BATCH_LIMIT は1以上を指定してください: %d", cfg.SchedulerBatchLimit))
	}
	if cfg.SendTimeout <= 0 {
		r.errs = append(r.errs, fmt.Errorf("SEND_TIMEOUT は正の期間を指定してください: %s", cfg.SendTimeout))
	}

	if err := errors.Join(r.errs...); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// reader は環境変数を型ごとに読み取り、解釈に失敗した項目を蓄積する。
type reader struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (r *reader) raw(key string) (string, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (r *reader) string(key, def string) string {
	if v, ok := r.raw(key); ok {
		return v
	}
	return def
}

func (r *reader) list(key string) []string {
	v, ok := r.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (r *reader) int(key string, def int) int {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s は整数で指定してください: %q", key, v))
		return def
	}
	return n
}

func (r *reader) float(key string, def float64) float64 {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		r.errs = append(r.errs, fmt.Errorf("%s は0以上の数値で指定してください: %q", key, v))
		return def
	}
	return f
}

func (r *reader) duration(key string, def time.Duration) time.Duration {
	v, ok := r.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%s は期間（例: 30s）で指定してください: %q", key, v))
		return def
	}
	return d
}
