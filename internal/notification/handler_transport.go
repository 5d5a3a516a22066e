package notification

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// createTransportRequest はトランスポート作成のリクエストボディ。
type createTransportRequest struct {
	Name        string `json:"name" binding:"required"`
	FromAddress string `json:"from_address" binding:"required"`
	IsDefault   bool   `json:"is_default"`
}

// reloadTransports は送信ワーカーが参照するトランスポート設定を読み直す。
// 失敗しても変更自体は保存済みのため、リクエストは成功として扱う。
func (s *Server) reloadTransports(ctx context.Context) {
	if s.transportConfig == nil {
		return
	}
	if err := s.transportConfig.Reload(ctx); err != nil {
		s.logger.Warn("トランスポート設定の再読み込みに失敗しました", zap.Error(err))
	}
}

func (s *Server) handleListTransports() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.transports.List(c.Request.Context())
		if err != nil {
			s.respondError(c, err, "トランスポート一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func (s *Server) handleTransportOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		options, err := s.transports.Options(c.Request.Context())
		if err != nil {
			s.respondError(c, err, "トランスポートの選択肢の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, options)
	}
}

// handleCreateTransport はトランスポートを登録する。is_defaultがtrueの場合は既存のデフォルトを置き換える。
func (s *Server) handleCreateTransport() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTransportRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		tr, err := s.transports.Create(c.Request.Context(), req.Name, req.FromAddress, req.IsDefault)
		if err != nil {
			s.respondError(c, err, "トランスポートの作成に失敗しました")
			return
		}
		s.reloadTransports(c.Request.Context())
		c.JSON(http.StatusCreated, tr)
	}
}

func (s *Server) handleDeleteTransport() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.transports.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.respondError(c, err, "トランスポートの削除に失敗しました")
			return
		}
		s.reloadTransports(c.Request.Context())
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) handleSetDefaultTransport() gin.HandlerFunc {
	return func(c *gin.Context) {
		tr, err := s.transports.SetDefault(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, err, "デフォルトトランスポートの設定に失敗しました")
			return
		}
		s.reloadTransports(c.Request.Context())
		c.JSON(http.StatusOK, tr)
	}
}
