package notification

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/notifly/internal/notification/blueprint"
)

// upsertAutomationRequest はオートメーション登録のリクエストボディ。
type upsertAutomationRequest struct {
	Name        string `json:"name"`
	BlueprintID string `json:"blueprint_id" binding:"required"`
}

// automationWithBlueprintRequest はブループリントとオートメーションを同時に作成するリクエストボディ。
type automationWithBlueprintRequest struct {
	Name      string           `json:"name"`
	Blueprint blueprintRequest `json:"blueprint"`
}

// handleUpsertAutomation はリソースに対するオートメーションを登録または置き換える。
func (s *Server) handleUpsertAutomation() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req upsertAutomationRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		a, err := s.automations.UpsertForResource(c.Request.Context(), c.Param("resource"), req.BlueprintID, req.Name)
		if err != nil {
			s.respondError(c, err, "オートメーションの登録に失敗しました")
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// handleCreateAutomationWithBlueprint はブループリントを作成し、そのリソースのオートメーションとして登録する。
func (s *Server) handleCreateAutomationWithBlueprint() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req automationWithBlueprintRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		a, bp, err := s.automations.CreateWithBlueprint(c.Request.Context(), req.Name, blueprint.CreateInput{
			Name:         req.Blueprint.Name,
			ResourceName: req.Blueprint.ResourceName,
			Subject:      req.Blueprint.Subject,
			Body:         req.Blueprint.Body,
		})
		if err != nil {
			s.respondError(c, err, "オートメーションの作成に失敗しました")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"automation": a, "blueprint": bp})
	}
}

func (s *Server) handleListAutomations() gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := s.automations.List(c.Request.Context())
		if err != nil {
			s.respondError(c, err, "オートメーション一覧の取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, list)
	}
}

func (s *Server) handleGetAutomation() gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := s.automations.Get(c.Request.Context(), c.Param("id"))
		if err != nil {
			s.respondError(c, err, "オートメーションの取得に失敗しました")
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func (s *Server) handleDeleteAutomation() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.automations.Delete(c.Request.Context(), c.Param("id")); err != nil {
			s.respondError(c, err, "オートメーションの削除に失敗しました")
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// handleResourceOptions は通知に対応しているリソースの選択肢を返す。
func (s *Server) handleResourceOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.automations.ListResourceOptions())
	}
}

// handleAutomationOptions はリソースごとのオートメーション名の選択肢を返す。
func (s *Server) handleAutomationOptions() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, s.automations.ListAutomationOptionsForResource(c.Param("resource")))
	}
}

// handlePlaceholders はリソースのテンプレートで使えるプレースホルダ名を返す。
func (s *Server) handlePlaceholders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"placeholders": s.automations.ListPlaceholdersForResource(c.Param("resource"))})
	}
}

// handleResolveAutomation はリソース名に対応するブループリントIDを返す。
func (s *Server) handleResolveAutomation() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := s.automations.ResolveBlueprintID(c.Request.Context(), c.Param("resource"))
		if err != nil {
			s.respondError(c, err, "オートメーションの解決に失敗しました")
			return
		}
		c.JSON(http.StatusOK, gin.H{"blueprint_id": id})
	}
}
