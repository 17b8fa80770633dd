package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelblog/internal/middleware"
	"travelblog/internal/service"
)

const genericMailNotice = "if the address belongs to an account, a mail is on its way"

type registerRequest struct {
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

func (h HandlerSet) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	result, err := h.deps.Accounts.Register(c.Request.Context(), service.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := gin.H{"message": "registration successful, check your inbox to verify your email"}
	if result.Key != "" {
		resp["apiKey"] = gin.H{"keyType": "primary", "key": result.Key, "isActive": false}
	}
	c.JSON(http.StatusCreated, resp)
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	account, err := h.deps.Accounts.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}

	issued, err := h.deps.Sessions.Issue(account)
	if err != nil {
		h.fail(c, err)
		return
	}

	h.setSessionCookies(c, issued.Token, issued.CSRFToken, issued.ExpiresAt)
	c.JSON(http.StatusOK, gin.H{
		"message":   "logged in",
		"user":      h.toAccountResponse(c, account),
		"csrfToken": issued.CSRFToken,
		"expiresAt": issued.ExpiresAt,
	})
}

// Logout always clears the cookies, even when server-side revocation fails.
func (h HandlerSet) Logout(c *gin.Context) {
	if token, err := c.Cookie(h.cfg.Security.SessionCookieName); err == nil && token != "" {
		if err := h.deps.Sessions.Logout(c.Request.Context(), token); err != nil {
			h.log.Error().Err(err).Str("request_id", middleware.RequestIDFrom(c)).Msg("session revocation failed")
		}
	}
	h.clearSessionCookies(c)
	message(c, http.StatusOK, "logged out")
}

func (h HandlerSet) VerifyEmail(c *gin.Context) {
	if err := h.deps.Accounts.VerifyEmail(c.Request.Context(), c.Query("token"), c.Query("userId")); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusOK, "email verified, you can now log in")
}

type emailRequest struct {
	Email string `json:"email" binding:"required"`
}

func (h HandlerSet) ResendVerification(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Accounts.ResendVerification(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusOK, genericMailNotice)
}

func (h HandlerSet) ForgotPassword(c *gin.Context) {
	var req emailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Accounts.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusOK, genericMailNotice)
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	UserID   string `json:"userId" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h HandlerSet) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Accounts.ResetPassword(c.Request.Context(), req.Token, req.UserID, req.Password); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusOK, "password updated, log in with your new password")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
	Email           string `json:"email" binding:"required"`
}

func (h HandlerSet) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}

	err := h.deps.Accounts.RequestPasswordChange(c.Request.Context(), principal(c).Account.ID, service.PasswordChangeInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		Email:           req.Email,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusAccepted, "check your inbox to confirm the new password")
}

func (h HandlerSet) VerifyPasswordChange(c *gin.Context) {
	if err := h.deps.Accounts.ConfirmPasswordChange(c.Request.Context(), c.Query("token"), c.Query("userId")); err != nil {
		h.fail(c, err)
		return
	}
	h.clearSessionCookies(c)
	message(c, http.StatusOK, "password changed, log in with your new password")
}

type changeEmailRequest struct {
	NewEmail        string `json:"new_email" binding:"required"`
	CurrentPassword string `json:"current_password" binding:"required"`
}

func (h HandlerSet) ChangeEmail(c *gin.Context) {
	var req changeEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err.Error())
		return
	}
	if err := h.deps.Accounts.RequestEmailChange(c.Request.Context(), principal(c).Account.ID, req.NewEmail, req.CurrentPassword); err != nil {
		h.fail(c, err)
		return
	}
	message(c, http.StatusAccepted, "check the new address to confirm the change")
}

func (h HandlerSet) VerifyEmailChange(c *gin.Context) {
	email, err := h.deps.Accounts.ConfirmEmailChange(c.Request.Context(), c.Query("token"), c.Query("userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "email address updated", "email": email})
}

func (h HandlerSet) CSRFToken(c *gin.Context) {
	token, err := h.deps.Sessions.MintCSRF(middleware.SessionToken(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.setCSRFCookie(c, token)
	c.JSON(http.StatusOK, gin.H{"csrfToken": token})
}

func (h HandlerSet) AdminCheck(c *gin.Context) {
	p, ok := middleware.CurrentPrincipal(c)
	c.JSON(http.StatusOK, gin.H{
		"authenticated": ok,
		"isAdmin":       ok && p.IsAdmin(),
	})
}

func (h HandlerSet) Session(c *gin.Context) {
	resp := gin.H{"status": middleware.CurrentResolution(c).String()}
	if p, ok := middleware.CurrentPrincipal(c); ok {
		resp["user"] = h.toAccountResponse(c, p.Account)
		resp["principal"] = string(p.Kind)
	}
	c.JSON(http.StatusOK, resp)
}
