package notification

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/notifly/internal/notification/dispatcher"
	"github.com/nao1215/notifly/internal/notification/ledger"
	"github.com/nao1215/notifly/internal/notification/template"
	"github.com/nao1215/notifly/pkg/event"
	"go.uber.org/zap"
)

// dispatchRequest は下書き・予約・即時配信のリクエストボディ。
type dispatchRequest struct {
	Recipients   []string        `json:"recipients"`
	ResourceID   string          `json:"resource_id"`
	ResourceName string          `json:"resource_name"`
	Tag          string          `json:"tag"`
	BlueprintRef string          `json:"blueprint_ref"`
	MailName     string          `json:"mail_name"`
	PlaceValues  *template.Value `json:"place_values"`
	Priority     int             `json:"priority"`
	Cc           []string        `json:"cc"`
	Bcc          []string        `json:"bcc"`
	Transport    string          `json:"transport"`
	ScheduleTime *time.Time      `json:"schedule_time"`
	Subject      string          `json:"subject"`
	Body         string          `json:"body"`
	IsPredefined bool            `json:"is_predefined"`
}

func (r dispatchRequest) toDispatch() dispatcher.Request {
	return dispatcher.Request{
		Recipients:   r.Recipients,
		ResourceID:   r.ResourceID,
		ResourceName: r.ResourceName,
		Tag:          r.Tag,
		BlueprintRef: r.BlueprintRef,
		MailName:     r.MailName,
		PlaceValues:  r.PlaceValues,
		Priority:     r.Priority,
		Cc:           r.Cc,
		Bcc:          r.Bcc,
		Transport:    r.Transport,
		ScheduleTime: r.ScheduleTime,
		Subject:      r.Subject,
		Body:         r.Body,
		IsPredefined: r.IsPredefined,
	}
}

// dispatchFunc はDispatcherの配信操作。
type dispatchFunc func(ctx context.Context, req dispatcher.Request) ([]*ledger.Record, error)

// recordOpFunc はDispatcherの単一レコード操作。
type recordOpFunc func(ctx context.Context, id string) (*ledger.Record, error)

// handleDispatch は配信要求を受け付け、作成した配信レコードを返す。
func (s *Server) handleDispatch(fn dispatchFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dispatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		records, err := fn(c.Request.Context(), req.toDispatch())
		if err != nil {
			s.respondError(c, err, "配信要求の処理に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"records": records})
	}
}

// handleSendDrafts はリソースIDとタグに一致する下書きをまとめて配信キューへ投入する。
func (s *Server) handleSendDrafts() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			ResourceID string `json:"resource_id" binding:"required"`
			Tag        string `json:"tag"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		records, err := s.dispatcher.SendDrafts(c.Request.Context(), req.ResourceID, req.Tag)
		if err != nil {
			s.respondError(c, err, "下書きの配信に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"records": records})
	}
}

// handleRecordOp は再送・取消・一時停止・再開のいずれかを実行し、更新後のレコードを返す。
func (s *Server) handleRecordOp(fn recordOpFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := fn(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, err, "配信レコードの更新に失敗しました")
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

// handleEvent はリソース側から送られたDispatchRequestedイベントを処理する。
func (s *Server) handleEvent() gin.HandlerFunc {
	return func(c *gin.Context) {
		var ev event.Event
		if err := c.ShouldBindJSON(&ev); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		records, err := s.dispatcher.HandleEvent(c.Request.Context(), &ev)
		if err != nil {
			s.respondError(c, err, "イベントの処理に失敗しました")
			return
		}

		ids := make([]string, 0, len(records))
		for _, rec := range records {
			ids = append(ids, rec.ID)
		}
		s.logger.Info("イベントを処理しました",
			zap.String("event_id", ev.ID),
			zap.String("event_type", string(ev.EventType)),
			zap.Int("records", len(ids)),
		)
		c.JSON(http.StatusCreated, gin.H{"record_ids": ids})
	}
}
