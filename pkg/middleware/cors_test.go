package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func corsRouter(origins []string) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins))
	router.GET("/api", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	return router
}

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("許可されたオリジンにだけCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()
		router := corsRouter([]string{"https://admin.example.com", " https://ops.example.com "})

		for origin, want := range map[string]string{
			"https://admin.example.com": "https://admin.example.com",
			"https://ops.example.com":   "https://ops.example.com",
			"https://evil.example.com":  "",
			"":                          "",
		} {
			req := httptest.NewRequest(http.MethodGet, "/api", nil)
			if origin != "" {
				req.Header.Set("Origin", origin)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if got := w.Header().Get("Access-Control-Allow-Origin"); got != want {
				t.Errorf("Origin=%q: Access-Control-Allow-Origin = %q, want %q", origin, got, want)
			}
			if w.Code != http.StatusOK || w.Body.String() != "ok" {
				t.Errorf("Origin=%q: ハンドラーが実行されていない: %d %q", origin, w.Code, w.Body.String())
			}
		}
	})

	t.Run("ワイルドカードで全オリジンが許可されること", func(t *testing.T) {
		t.Parallel()
		router := corsRouter([]string{"*"})

		req := httptest.NewRequest(http.MethodGet, "/api", nil)
		req.Header.Set("Origin", "https://any.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example.com" {
			t.Errorf("Access-Control-Allow-Origin = %q", got)
		}
		if got := w.Header().Get("Vary"); got != "Origin" {
			t.Errorf("Vary = %q, want Origin", got)
		}
	})

	t.Run("OPTIONSリクエストは204で中断されること", func(t *testing.T) {
		t.Parallel()
		router := corsRouter([]string{"https://admin.example.com"})

		req := httptest.NewRequest(http.MethodOptions, "/api", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, DELETE, OPTIONS" {
			t.Errorf("Access-Control-Allow-Methods = %q", got)
		}
	})
}
