package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestMetrics はコレクタへの記録を検証する。
func TestMetrics(t *testing.T) {
	t.Parallel()

	t.Run("終了状態ごとに件数が加算されること", func(t *testing.T) {
		t.Parallel()
		m := New()

		m.RecordOutcome("completed")
		m.RecordOutcome("completed")
		m.RecordOutcome("failed")

		if got := testutil.ToFloat64(m.dispatchOutcomes.WithLabelValues("completed")); got != 2 {
			t.Errorf("COMPLETED = %v, want 2", got)
		}
		if got := testutil.ToFloat64(m.dispatchOutcomes.WithLabelValues("failed")); got != 1 {
			t.Errorf("FAILED = %v, want 1", got)
		}
	})

	t.Run("ゲージとカウンタが記録されること", func(t *testing.T) {
		t.Parallel()
		m := New()

		m.SetQueueDepth(7)
		m.AddScheduledClaims(3)
		m.IncEnqueueFailures()
		m.ObserveSend(10 * time.Millisecond)

		if got := testutil.ToFloat64(m.queueDepth); got != 7 {
			t.Errorf("queueDepth = %v, want 7", got)
		}
		if got := testutil.ToFloat64(m.scheduledClaims); got != 3 {
			t.Errorf("scheduledClaims = %v, want 3", got)
		}
		if got := testutil.ToFloat64(m.enqueueFailures); got != 1 {
			t.Errorf("enqueueFailures = %v, want 1", got)
		}
	})

	t.Run("nilでもパニックしないこと", func(t *testing.T) {
		t.Parallel()
		var m *Metrics

		m.RecordOutcome("completed")
		m.ObserveSend(time.Second)
		m.SetQueueDepth(1)
		m.AddScheduledClaims(1)
		m.IncEnqueueFailures()
	})
}

// TestMiddleware はHTTPメトリクスの記録と公開を検証する。
func TestMiddleware(t *testing.T) {
	t.Parallel()

	m := New()
	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/records/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	for _, id := range []string{"a", "b"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/records/"+id, nil))
	}

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/records/:id", "200")); got != 2 {
		t.Errorf("requests = %v, want 2", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "notification_http_requests_total") {
		t.Error("メトリクス出力にnotification_http_requests_totalが含まれていない")
	}
}
