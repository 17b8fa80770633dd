package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelblog/internal/media/sniffer"
	"travelblog/internal/models"
)

func (h HandlerSet) Profile(c *gin.Context) {
	account, err := h.deps.Accounts.Profile(c.Request.Context(), principal(c).Account.ID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.toAccountResponse(c, account)})
}

type updateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
}

func (h HandlerSet) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	account, err := h.deps.Accounts.UpdateProfile(c.Request.Context(), principal(c).Account.ID, models.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.toAccountResponse(c, account)})
}

func (h HandlerSet) UploadAvatar(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.cfg.Storage.MaxAvatarSize+1<<16)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		h.badRequest(c, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	account, err := h.deps.Accounts.SetAvatar(
		c.Request.Context(),
		principal(c).Account.ID,
		file,
		header.Size,
		sniffer.DeclaredType(http.Header(header.Header)),
	)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": h.toAccountResponse(c, account)})
}

type deleteAccountRequest struct {
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) DeleteAccount(c *gin.Context) {
	var req deleteAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Accounts.DeleteOwnAccount(c.Request.Context(), principal(c).Account.ID, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	h.clearSessionCookies(c)
	message(c, http.StatusOK, "account deleted")
}
