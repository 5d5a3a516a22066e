package notification

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/notifly/internal/notification/blueprint"
)

// blueprintRequest はブループリント作成・更新のリクエストボディ。
type blueprintRequest struct {
	Name         string `json:"name"`
	ResourceName string `json:"resource_name"`
	Subject      string `json:"subject"`
	Body         string `json:"body"`
}

// handleCreateBlueprint はブループリントを作成する。
func (s *Server) handleCreateBlueprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blueprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		bp, err := s.blueprints.Create(c.Request.Context(), blueprint.CreateInput{
			Name:         req.Name,
			ResourceName: req.ResourceName,
			Subject:      req.Subject,
			Body:         req.Body,
		})
		if err != nil {
			s.respondError(c, err, "ブループリントの作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, bp)
	}
}

// handleListBlueprints はブループリントを名前・リソース名で絞り込み、ページ単位で返す。
// sort=oldest を指定すると作成日時の昇順になる。
func (s *Server) handleListBlueprints() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := queryInt(c, "page", 1)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		limit, err := queryInt(c, "limit", 0)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := s.blueprints.List(c.Request.Context(), blueprint.ListQuery{
			Name:         c.Query("name"),
			ResourceName: c.Query("resource_name"),
			NewestFirst:  c.Query("sort") != "oldest",
			Page:         page,
			Limit:        limit,
		})
		if err != nil {
			s.respondError(c, err, "ブループリント一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// handleBlueprintOptions はセレクトボックス用のブループリント一覧を返す。
func (s *Server) handleBlueprintOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		options, err := s.blueprints.ListOptions(c.Request.Context())
		if err != nil {
			s.respondError(c, err, "ブループリントの選択肢の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, options)
	}
}

// handlePromotionOptions はプロモーション用ブループリントの選択肢を返す。
func (s *Server) handlePromotionOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		options, err := s.blueprints.PromotionOptions(c.Request.Context())
		if err != nil {
			s.respondError(c, err, "ブループリントの選択肢の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, options)
	}
}

func (s *Server) handleGetBlueprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		bp, err := s.blueprints.FindByIDOrName(c.Request.Context(), c.Param("idOrName"))
		if err != nil {
			s.respondError(c, err, "ブループリントの取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, bp)
	}
}

// handleUpdateBlueprint はブループリントの件名と本文を置き換える。
func (s *Server) handleUpdateBlueprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req blueprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		bp, err := s.blueprints.Update(c.Request.Context(), c.Param("id"), blueprint.UpdateInput{
			Name:         req.Name,
			ResourceName: req.ResourceName,
			Subject:      req.Subject,
			Body:         req.Body,
		})
		if err != nil {
			s.respondError(c, err, "ブループリントの更新に失敗しました")
			return
		}
		c.JSON(http.StatusOK, bp)
	}
}

func (s *Server) handleDeleteBlueprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.blueprints.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.respondError(c, err, "ブループリントの削除に失敗しました")
			return
		}
		c.Status(http.StatusNoContent)
	}
}
