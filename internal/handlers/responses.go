package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"travelblog/internal/models"
)

type accountResponse struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Verified  bool      `json:"verified"`
	Role      string    `json:"role"`
	AvatarURL string    `json:"avatarUrl,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type apiKeyResponse struct {
	KeyType         string     `json:"keyType"`
	HasKey          bool       `json:"hasKey"`
	Prefix          string     `json:"prefix,omitempty"`
	IsActive        bool       `json:"isActive"`
	CreatedAt       *time.Time `json:"createdAt"`
	LastUsedAt      *time.Time `json:"lastUsedAt"`
	LastGeneratedAt *time.Time `json:"lastGeneratedAt"`
}

type countryResponse struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	Capital    string `json:"capital"`
	Region     string `json:"region"`
	Population int64  `json:"population"`
}

func (h HandlerSet) toAccountResponse(c *gin.Context, account models.Account) accountResponse {
	resp := accountResponse{
		ID:        account.ID,
		Username:  account.Username,
		Email:     account.Email,
		FirstName: account.FirstName,
		LastName:  account.LastName,
		Verified:  account.Verified,
		Role:      string(account.Role),
		CreatedAt: account.CreatedAt,
	}
	if account.AvatarKey != nil && h.deps.Avatars != nil {
		url, err := h.deps.Avatars.AvatarURL(c.Request.Context(), *account.AvatarKey)
		if err != nil {
			h.log.Warn().Err(err).Str("account_id", account.ID).Msg("avatar link failed")
		} else {
			resp.AvatarURL = url
		}
	}
	return resp
}

func toAPIKeyResponses(slots []models.APIKeySlot) []apiKeyResponse {
	out := make([]apiKeyResponse, 0, len(slots))
	for _, slot := range slots {
		item := apiKeyResponse{
			KeyType:         string(slot.Slot),
			HasKey:          !slot.Empty(),
			IsActive:        slot.IsActive,
			CreatedAt:       slot.CreatedAt,
			LastUsedAt:      slot.LastUsedAt,
			LastGeneratedAt: slot.LastGeneratedAt,
		}
		if slot.KeyPrefix != nil {
			item.Prefix = *slot.KeyPrefix
		}
		out = append(out, item)
	}
	return out
}

func toCountryResponse(country models.Country) countryResponse {
	return countryResponse(country)
}

func message(c *gin.Context, status int, text string) {
	c.JSON(status, gin.H{"message": text})
}

func (h HandlerSet) setSessionCookies(c *gin.Context, sessionToken, csrfToken string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	http.SetCookie(c.Writer, h.cookie(h.cfg.Security.SessionCookieName, sessionToken, maxAge, true))
	http.SetCookie(c.Writer, h.cookie(h.cfg.Security.CSRFCookieName, csrfToken, maxAge, false))
}

func (h HandlerSet) setCSRFCookie(c *gin.Context, csrfToken string) {
	http.SetCookie(c.Writer, h.cookie(h.cfg.Security.CSRFCookieName, csrfToken, int(h.cfg.Security.SessionTTL.Seconds()), false))
}

func (h HandlerSet) clearSessionCookies(c *gin.Context) {
	http.SetCookie(c.Writer, h.cookie(h.cfg.Security.SessionCookieName, "", -1, true))
	http.SetCookie(c.Writer, h.cookie(h.cfg.Security.CSRFCookieName, "", -1, false))
}

// cookie builds a SameSite=Strict cookie. The CSRF cookie must stay
// readable by scripts so they can echo it in the header.
func (h HandlerSet) cookie(name, value string, maxAge int, httpOnly bool) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   h.cfg.Security.CookieDomain,
		MaxAge:   maxAge,
		Secure:   h.cfg.Security.SecureCookies,
		HttpOnly: httpOnly,
		SameSite: http.SameSiteStrictMode,
	}
}
