package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travelblog/internal/config"
	"travelblog/internal/middleware"
	"travelblog/internal/models"
	"travelblog/internal/service"
)

type AccountFlows interface {
	Register(ctx context.Context, input service.RegisterInput) (service.RegisterResult, error)
	Login(ctx context.Context, username, password string) (models.Account, error)
	VerifyEmail(ctx context.Context, token, accountID string) error
	ResendVerification(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, accountID, newPassword string) error
	RequestPasswordChange(ctx context.Context, accountID string, input service.PasswordChangeInput) error
	ConfirmPasswordChange(ctx context.Context, token, accountID string) error
	RequestEmailChange(ctx context.Context, accountID, newEmail, currentPassword string) error
	ConfirmEmailChange(ctx context.Context, token, accountID string) (string, error)
	Profile(ctx context.Context, accountID string) (models.Account, error)
	UpdateProfile(ctx context.Context, accountID string, update models.ProfileUpdate) (models.Account, error)
	SetAvatar(ctx context.Context, accountID string, body io.Reader, size int64, declaredType string) (models.Account, error)
	DeleteOwnAccount(ctx context.Context, accountID, password string) error
	AdminDeleteAccount(ctx context.Context, actor models.Principal, accountID string) error
	ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error)
}

type KeyLifecycle interface {
	Generate(ctx context.Context, actor models.Principal, slot models.KeySlot) (service.GeneratedKey, error)
	AdminGenerate(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot) (service.GeneratedKey, error)
	Toggle(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot, active bool) ([]models.APIKeySlot, error)
	Revoke(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot) ([]models.APIKeySlot, error)
	List(ctx context.Context, actor models.Principal, accountID string) ([]models.APIKeySlot, error)
}

type Sessions interface {
	Issue(account models.Account) (service.IssuedSession, error)
	MintCSRF(sessionToken string) (string, error)
	VerifyCSRF(sessionToken, cookieValue, headerValue string) bool
	Logout(ctx context.Context, token string) error
}

type CountryCatalog interface {
	List(ctx context.Context) ([]models.Country, error)
	GetByCode(ctx context.Context, code string) (models.Country, error)
}

// AvatarLinker turns a stored avatar key into a download URL.
type AvatarLinker interface {
	AvatarURL(ctx context.Context, key string) (string, error)
}

// Dependencies is everything the HTTP layer calls into. Avatars may be nil
// when object storage is not configured.
type Dependencies struct {
	Accounts  AccountFlows
	Keys      KeyLifecycle
	Sessions  Sessions
	Countries CountryCatalog
	Guard     *middleware.Guard
	Limiter   middleware.Allower
	Avatars   AvatarLinker
	Checks    map[string]func(ctx context.Context) error
}

type HandlerSet struct {
	log  zerolog.Logger
	cfg  *config.AppConfig
	deps Dependencies
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, deps Dependencies) HandlerSet {
	return HandlerSet{log: log, cfg: cfg, deps: deps}
}

func (h HandlerSet) Routes(router *gin.RouterGroup) {
	limits := h.cfg.RateLimit
	limit := func(bucket string, policy config.RateLimitPolicy, key middleware.KeyFunc) gin.HandlerFunc {
		return middleware.RateLimit(h.deps.Limiter, bucket, policy, key, h.log)
	}
	authLimit := limit("auth", limits.Auth, middleware.ByClientIP)
	guard := h.deps.Guard

	router.GET("/healthz", h.Health)

	router.Use(
		limit("global", limits.Global, middleware.ByClientIP),
		middleware.CSRF(h.deps.Sessions, h.cfg.Security.SessionCookieName, h.cfg.Security.CSRFCookieName),
	)

	auth := router.Group("/auth")
	{
		auth.POST("/register", authLimit, h.Register)
		auth.POST("/login", authLimit, h.Login)
		auth.POST("/logout", h.Logout)
		auth.GET("/verify-email", h.VerifyEmail)
		auth.POST("/resend-verification", authLimit, limit("resend", limits.Resend, middleware.ByClientIP), h.ResendVerification)
		auth.POST("/forgot-password", authLimit, h.ForgotPassword)
		auth.POST("/reset-password", authLimit, h.ResetPassword)
		auth.GET("/verify-password-change", h.VerifyPasswordChange)
		auth.GET("/verify-email-change", h.VerifyEmailChange)

		introspect := auth.Group("", guard.OptionalSession())
		introspect.GET("/admin-check", h.AdminCheck)
		introspect.GET("/session", h.Session)

		session := auth.Group("", guard.RequireSession())
		session.POST("/change-password", h.ChangePassword)
		session.POST("/change-email", h.ChangeEmail)
		session.GET("/profile", h.Profile)
		session.PUT("/profile", h.UpdateProfile)
		session.POST("/profile/avatar", h.UploadAvatar)
		session.DELETE("/account", h.DeleteAccount)
		session.GET("/csrf-token", h.CSRFToken)
		session.GET("/api-keys", h.ListAPIKeys)
		session.POST("/generate-api-key", h.GenerateAPIKey)
		session.POST("/toggle-api-key/:userId", h.ToggleAPIKey)
		session.DELETE("/delete-api-key/:userId", h.DeleteAPIKey)
	}

	admin := router.Group("/admin", guard.RequireSession(), middleware.RequireAdmin())
	{
		admin.GET("/users", h.AdminListUsers)
		admin.DELETE("/users/:userId", h.AdminDeleteUser)
		admin.GET("/users/:userId/api-keys", h.AdminListAPIKeys)
		admin.POST("/users/:userId/api-keys/generate", h.AdminGenerateAPIKey)
		admin.POST("/users/:userId/api-keys/toggle", h.AdminToggleAPIKey)
		admin.DELETE("/users/:userId/api-keys", h.AdminDeleteAPIKey)
	}

	data := router.Group("/api/countries",
		limit("apikey", limits.APIKey, middleware.ByAPIKey),
		guard.RequireAPIKey(),
	)
	data.GET("/all", h.ListCountries)
	data.GET("/:code", h.GetCountry)
}

func (h HandlerSet) fail(c *gin.Context, err error) {
	middleware.AbortWithError(c, h.log, err)
}

func (h HandlerSet) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "message": message})
}

func principal(c *gin.Context) models.Principal {
	p, _ := middleware.CurrentPrincipal(c)
	return p
}
