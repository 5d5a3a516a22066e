// Package metrics は通知サービスのPrometheusメトリクスを提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "notification"

// Metrics は通知サービスのコレクタ一式。
// メソッドはnilレシーバでも安全に呼び出せる（何も記録しない）。
type Metrics struct {
	registry *prometheus.Registry

	dispatchOutcomes *prometheus.CounterVec
	sendDuration     prometheus.Histogram
	queueDepth       prometheus.Gauge
	scheduledClaims  prometheus.Counter
	enqueueFailures  prometheus.Counter
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

// New は独立したレジストリにコレクタを登録したMetricsを生成する。
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatchOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "dispatch_outcomes_total",
				Help:      "配信ジョブの終了状態ごとの件数。",
			},
			[]string{"status"},
		),
		sendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "worker",
				Name:      "send_duration_seconds",
				Help:      "Sender呼び出しの所要時間。",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms〜約10s
			},
		),
		queueDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "depth",
				Help:      "キューに滞留しているジョブ数。",
			},
		),
		scheduledClaims: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "scheduler",
				Name:      "claimed_total",
				Help:      "スケジューラが予約レコードから取得した件数。",
			},
		),
		enqueueFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "queue",
				Name:      "enqueue_failures_total",
				Help:      "キュー投入に失敗した件数。",
			},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "処理したHTTPリクエスト数。",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTPリクエストの所要時間。",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
			},
			[]string{"method", "path"},
		),
	}

	m.registry.MustRegister(
		m.dispatchOutcomes,
		m.sendDuration,
		m.queueDepth,
		m.scheduledClaims,
		m.enqueueFailures,
		m.httpRequests,
		m.httpDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return m
}

// Registry はコレクタを登録したレジストリを返す。
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler はメトリクスを公開するHTTPハンドラを返す。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordOutcome は配信ジョブの終了状態を記録する。
func (m *Metrics) RecordOutcome(status string) {
	if m == nil {
		return
	}
	m.dispatchOutcomes.WithLabelValues(status).Inc()
}

// ObserveSend はSender呼び出しの所要時間を記録する。
func (m *Metrics) ObserveSend(d time.Duration) {
	if m == nil {
		return
	}
	m.sendDuration.Observe(d.Seconds())
}

// SetQueueDepth はキューの滞留数を記録する。
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// AddScheduledClaims はスケジューラが取得した件数を加算する。
func (m *Metrics) AddScheduledClaims(n int) {
	if m == nil {
		return
	}
	m.scheduledClaims.Add(float64(n))
}

// IncEnqueueFailures はキュー投入の失敗を1件加算する。
func (m *Metrics) IncEnqueueFailures() {
	if m == nil {
		return
	}
	m.enqueueFailures.Inc()
}

// Middleware はHTTPリクエストの件数と所要時間を記録するginミドルウェアを返す。
// パスはルート定義（例: /api/v1/dispatch-records/:id）で集計する。
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		method := c.Request.Method
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}
