package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListUsers(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	accounts, err := h.deps.Accounts.ListAccounts(c.Request.Context(), limit, offset)
	if err != nil {
		h.fail(c, err)
		return
	}

	items := make([]accountResponse, 0, len(accounts))
	for _, account := range accounts {
		items = append(items, h.toAccountResponse(c, account))
	}
	c.JSON(http.StatusOK, gin.H{"users": items, "limit": limit, "offset": offset})
}

func (h HandlerSet) AdminDeleteUser(c *gin.Context) {
	if err := h.deps.Accounts.AdminDeleteAccount(c.Request.Context(), principal(c), c.Param("userId")); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusOK, "account deleted")
}

func (h HandlerSet) AdminListAPIKeys(c *gin.Context) {
	slots, err := h.deps.Keys.List(c.Request.Context(), principal(c), c.Param("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"apiKeys": toAPIKeyResponses(slots)})
}

func (h HandlerSet) AdminGenerateAPIKey(c *gin.Context) {
	var req keyTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	slot, ok := h.parseSlot(c, req.KeyType)
	if !ok {
		return
	}

	generated, err := h.deps.Keys.AdminGenerate(c.Request.Context(), principal(c), c.Param("userId"), slot)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondGenerated(c, generated)
}

func (h HandlerSet) AdminToggleAPIKey(c *gin.Context) {
	h.ToggleAPIKey(c)
}

func (h HandlerSet) AdminDeleteAPIKey(c *gin.Context) {
	h.DeleteAPIKey(c)
}
