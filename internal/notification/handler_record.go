package notification

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/notifly/internal/notification/ledger"
)

// parseRecordQuery はクエリパラメータから配信レコードの検索条件を組み立てる。
// 日時はRFC3339で指定する。
func parseRecordQuery(c *gin.Context) (ledger.Query, error) {
	q := ledger.Query{
		RecipientEmail: c.Query("recipient_email"),
		ResourceName:   c.Query("resource_name"),
		ResourceID:     c.Query("resource_id"),
		Tag:            c.Query("tag"),
		SortBy:         c.Query("sort_by"),
		SortDesc:       !strings.EqualFold(c.Query("sort_order"), "asc"),
	}

	if v := c.Query("status"); v != "" {
		st, err := ledger.ParseStatus(v)
		if err != nil {
			return q, err
		}
		q.Status = st
	}
	if v := c.Query("is_opened"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return q, fmt.Errorf("%w: is_opened は真偽値で指定してください", ledger.ErrInvalid)
		}
		q.IsOpened = &b
	}

	ranges := []struct {
		prefix string
		dst    *ledger.Range
	}{
		{"created", &q.Created},
		{"scheduled", &q.Scheduled},
		{"opened", &q.Opened},
		{"sent", &q.Sent},
	}
	for _, r := range ranges {
		from, err := queryTime(c, r.prefix+"_from")
		if err != nil {
			return q, err
		}
		to, err := queryTime(c, r.prefix+"_to")
		if err != nil {
			return q, err
		}
		r.dst.From, r.dst.To = from, to
	}

	var err error
	if q.Page, err = queryInt(c, "page", 1); err != nil {
		return q, fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}
	if q.Limit, err = queryInt(c, "limit", 0); err != nil {
		return q, fmt.Errorf("%w: %v", ledger.ErrInvalid, err)
	}
	return q, nil
}

func queryTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s はRFC3339形式で指定してください", ledger.ErrInvalid, key)
	}
	return &t, nil
}

// handleListRecords は配信履歴を検索条件で絞り込み、ページ単位で返す。
func (s *Server) handleListRecords() gin.HandlerFunc {
	return func(c *gin.Context) {
		q, err := parseRecordQuery(c)
		if err != nil {
			s.respondError(c, err, "配信履歴の取得に失敗しました")
			return
		}

		page, err := s.ledger.List(c.Request.Context(), q)
		if err != nil {
			s.respondError(c, err, "配信履歴の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// handleListRecordsByResource はリソースIDに紐づく配信レコードを返す。tagで絞り込める。
func (s *Server) handleListRecordsByResource() gin.HandlerFunc {
	return func(c *gin.Context) {
		records, err := s.ledger.FindByResourceID(c.Request.Context(), c.Param("resourceId"), c.Query("tag"))
		if err != nil {
			s.respondError(c, err, "配信レコードの取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"items": records})
	}
}

// handleEngagementStats は宛先ごとのエンゲージメント集計を返す。
func (s *Server) handleEngagementStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := s.ledger.ComputeEngagementStats(c.Request.Context(), c.Param("email"))
		if err != nil {
			s.respondError(c, err, "エンゲージメント集計に失敗しました")
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// handleGetRecord は配信レコードを返す。未レンダリングの場合はプレビューとしてレンダリング結果を含める。
// レコード自体は更新しない。
func (s *Server) handleGetRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := s.dispatcher.Preview(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, err, "配信レコードのプレビューに失敗しました")
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) handleDeleteRecord() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.ledger.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.respondError(c, err, "配信レコードの削除に失敗しました")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
