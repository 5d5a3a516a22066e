package notification

import (
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// trackingPixel は開封計測用の1x1透過PNG。
var trackingPixel = mustDecodeBase64("iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNgYAAAAAMAAWgmWQ0AAAAASUVORK5CYII=")

func mustDecodeBase64(s string) []byte {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// handleTrackingPixel は開封を記録し、常に1x1のPNGを返す。
// 記録に失敗してもメールクライアントには画像を返す。
func (s *Server) handleTrackingPixel() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		if err := s.ledger.MarkOpened(c.Request.Context(), id); err != nil {
			s.logger.Debug("開封の記録に失敗しました", zap.String("record_id", id), zap.Error(err))
		}
		c.Header("Cache-Control", "no-store, no-cache, must-revalidate")
		c.Data(http.StatusOK, "image/png", trackingPixel)
	}
}

// handleTrackingClick はクリックを記録し、redirectパラメータのURLへリダイレクトする。
// 記録に失敗した場合やURLが不正な場合はフォールバックURLへリダイレクトする。
func (s *Server) handleTrackingClick() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		target, ok := redirectTarget(c.Query("redirect"))
		if err := s.ledger.MarkClicked(c.Request.Context(), id); err != nil {
			s.logger.Debug("クリックの記録に失敗しました", zap.String("record_id", id), zap.Error(err))
			ok = false
		}
		if !ok {
			target = s.cfg.TrackingFallbackURL
		}
		c.Redirect(http.StatusFound, target)
	}
}

// redirectTarget はhttpまたはhttpsの絶対URLのみをリダイレクト先として受け付ける。
func redirectTarget(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", false
	}
	return u.String(), true
}
