package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelblog/internal/models"
	"travelblog/internal/service"
)

type keyTypeRequest struct {
	KeyType string `json:"key_type" binding:"required"`
}

type toggleKeyRequest struct {
	KeyType  string `json:"key_type" binding:"required"`
	IsActive *bool  `json:"isActive" binding:"required"`
}

func (h HandlerSet) parseSlot(c *gin.Context, raw string) (models.KeySlot, bool) {
	slot, ok := models.ParseKeySlot(raw)
	if !ok {
		h.badRequest(c, "key_type must be primary or secondary")
	}
	return slot, ok
}

func (h HandlerSet) ListAPIKeys(c *gin.Context) {
	p := principal(c)
	slots, err := h.deps.Keys.List(c.Request.Context(), p, p.Account.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": toAPIKeyResponses(slots)})
}

func (h HandlerSet) GenerateAPIKey(c *gin.Context) {
	var req keyTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	slot, ok := h.parseSlot(c, req.KeyType)
	if !ok {
		return
	}

	generated, err := h.deps.Keys.Generate(c.Request.Context(), principal(c), slot)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondGenerated(c, generated)
}

func (h HandlerSet) ToggleAPIKey(c *gin.Context) {
	var req toggleKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	slot, ok := h.parseSlot(c, req.KeyType)
	if !ok {
		return
	}

	slots, err := h.deps.Keys.Toggle(c.Request.Context(), principal(c), c.Param("userId"), slot, *req.IsActive)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": toAPIKeyResponses(slots)})
}

func (h HandlerSet) DeleteAPIKey(c *gin.Context) {
	slot, ok := h.parseSlot(c, c.Query("key_type"))
	if !ok {
		return
	}

	slots, err := h.deps.Keys.Revoke(c.Request.Context(), principal(c), c.Param("userId"), slot)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": toAPIKeyResponses(slots)})
}

// respondGenerated is the only place a raw key value is written out.
func respondGenerated(c *gin.Context, generated service.GeneratedKey) {
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, gin.H{
		"key":     generated.Key,
		"keyType": string(generated.Slot.Slot),
		"apiKeys": toAPIKeyResponses(generated.Slots),
	})
}
