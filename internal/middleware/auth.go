package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"travelblog/internal/models"
	"travelblog/internal/service"
)

const (
	HeaderAPIKey = "X-API-Key"

	principalKey  = "principal"
	resolutionKey = "session_resolution"
	sessionKey    = "session_token"
)

// Resolution is the outcome of looking at a request's credentials.
type Resolution int

const (
	Anonymous Resolution = iota
	Authenticated
	Rejected
)

func (r Resolution) String() string {
	switch r {
	case Authenticated:
		return "authenticated"
	case Rejected:
		return "rejected"
	}
	return "anonymous"
}

type SessionResolver interface {
	Resolve(ctx context.Context, token string) (models.Principal, error)
}

type KeyAuthenticator interface {
	Authenticate(ctx context.Context, raw string) (models.Principal, error)
}

// Guard turns session cookies and API keys into a principal stored on the
// gin context.
type Guard struct {
	sessions   SessionResolver
	keys       KeyAuthenticator
	cookieName string
	log        zerolog.Logger
}

func NewGuard(sessions SessionResolver, keys KeyAuthenticator, cookieName string, log zerolog.Logger) *Guard {
	return &Guard{sessions: sessions, keys: keys, cookieName: cookieName, log: log}
}

// ResolveSession never aborts; err is only set for Rejected.
func (g *Guard) ResolveSession(c *gin.Context) (models.Principal, Resolution, error) {
	token, err := c.Cookie(g.cookieName)
	if err != nil || token == "" {
		return models.Principal{}, Anonymous, nil
	}

	principal, err := g.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		return models.Principal{}, Rejected, err
	}
	c.Set(sessionKey, token)
	return principal, Authenticated, nil
}

func (g *Guard) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, resolution, err := g.ResolveSession(c)
		switch resolution {
		case Anonymous:
			abortWithStatus(c, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		case Rejected:
			AbortWithError(c, g.log, err)
			return
		}

		setPrincipal(c, principal, resolution)
		c.Next()
	}
}

// OptionalSession attaches a principal when a valid session exists and
// otherwise lets the request through as anonymous.
func (g *Guard) OptionalSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, resolution, err := g.ResolveSession(c)
		if resolution == Rejected {
			var svcErr *service.Error
			if !errors.As(err, &svcErr) {
				g.log.Warn().Err(err).Str("request_id", RequestIDFrom(c)).Msg("session check failed")
			}
			c.Set(resolutionKey, Rejected)
			c.Next()
			return
		}

		if resolution == Authenticated {
			setPrincipal(c, principal, resolution)
		} else {
			c.Set(resolutionKey, Anonymous)
		}
		c.Next()
	}
}

// RequireAPIKey authenticates data-plane calls by the X-API-Key header.
func (g *Guard) RequireAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderAPIKey)
		if raw == "" {
			abortWithStatus(c, http.StatusUnauthorized, "api_key_required", "an X-API-Key header is required")
			return
		}

		principal, err := g.keys.Authenticate(c.Request.Context(), raw)
		if err != nil {
			AbortWithError(c, g.log, err)
			return
		}

		setPrincipal(c, principal, Authenticated)
		c.Next()
	}
}

func setPrincipal(c *gin.Context, principal models.Principal, resolution Resolution) {
	c.Set(principalKey, principal)
	c.Set(resolutionKey, resolution)
}

func CurrentPrincipal(c *gin.Context) (models.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return models.Principal{}, false
	}
	principal, ok := value.(models.Principal)
	return principal, ok
}

func CurrentResolution(c *gin.Context) Resolution {
	if value, ok := c.Get(resolutionKey); ok {
		if resolution, ok := value.(Resolution); ok {
			return resolution
		}
	}
	return Anonymous
}

// SessionToken returns the session cookie value of an authenticated request.
func SessionToken(c *gin.Context) string {
	return c.GetString(sessionKey)
}
