package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"travelblog/internal/config"
	"travelblog/internal/ids"
	"travelblog/internal/models"
	"travelblog/internal/repository"
	"travelblog/internal/security"
)

const (
	denylistKeyPrefix = "session:deny:"
	epochKeyPrefix    = "session:epoch:"
)

// IssuedSession is what the login handler needs to set both cookies.
type IssuedSession struct {
	Token     string
	SessionID string
	CSRFToken string
	ExpiresAt time.Time
}

// SessionService signs session cookies and decides whether a presented one
// is still valid. Revocation state lives in Redis: a denylist entry per
// logged-out session and a per-account epoch that invalidates every session
// issued before it.
type SessionService struct {
	accounts AccountStore
	cache    *redis.Client
	cfg      config.SecurityConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewSessionService(accounts AccountStore, cache *redis.Client, cfg config.SecurityConfig, log zerolog.Logger) *SessionService {
	return &SessionService{accounts: accounts, cache: cache, cfg: cfg, log: log, now: time.Now}
}

func (s *SessionService) Issue(account models.Account) (IssuedSession, error) {
	sessionID := ids.New()
	token, expiresAt, err := security.GenerateSessionToken(
		s.cfg.SessionSecret,
		account.ID,
		sessionID,
		string(account.Role),
		s.now(),
		s.cfg.SessionTTL,
	)
	if err != nil {
		return IssuedSession{}, err
	}

	csrfToken, err := security.MintCSRFToken(s.cfg.CSRFSecret, token)
	if err != nil {
		return IssuedSession{}, err
	}

	return IssuedSession{
		Token:     token,
		SessionID: sessionID,
		CSRFToken: csrfToken,
		ExpiresAt: expiresAt,
	}, nil
}

// MintCSRF returns a fresh CSRF token bound to the given session cookie.
func (s *SessionService) MintCSRF(sessionToken string) (string, error) {
	return security.MintCSRFToken(s.cfg.CSRFSecret, sessionToken)
}

func (s *SessionService) VerifyCSRF(sessionToken, cookieValue, headerValue string) bool {
	return security.VerifyCSRFToken(s.cfg.CSRFSecret, sessionToken, cookieValue, headerValue)
}

// Resolve validates a session cookie and loads the account behind it. The
// role is always taken from the store, never from the token.
func (s *SessionService) Resolve(ctx context.Context, token string) (models.Principal, error) {
	claims, err := security.ParseSessionToken(token, s.cfg.SessionSecret)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.Principal{}, errSessionExpired
		}
		return models.Principal{}, errSessionInvalid
	}

	revoked, err := s.revoked(ctx, claims)
	if err != nil {
		return models.Principal{}, err
	}
	if revoked {
		return models.Principal{}, errSessionInvalid
	}

	account, err := s.accounts.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Principal{}, errSessionInvalid
		}
		return models.Principal{}, fmt.Errorf("load session account: %w", err)
	}

	kind := models.PrincipalUser
	if account.IsAdmin() {
		kind = models.PrincipalAdmin
	}
	return models.Principal{Kind: kind, Account: account, SessionID: claims.SessionID}, nil
}

func (s *SessionService) revoked(ctx context.Context, claims *security.SessionClaims) (bool, error) {
	pipe := s.cache.Pipeline()
	denied := pipe.Exists(ctx, denylistKeyPrefix+claims.SessionID)
	epoch := pipe.Get(ctx, epochKeyPrefix+claims.UserID)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("check session revocation: %w", err)
	}

	if denied.Val() > 0 {
		return true, nil
	}
	if raw, err := epoch.Result(); err == nil {
		revokedBefore, err := strconv.ParseInt(raw, 10, 64)
		if err == nil && claims.IssuedAtMs <= revokedBefore {
			return true, nil
		}
	}
	return false, nil
}

// Logout denylists the session until its natural expiry. Tokens that no
// longer parse need no revocation.
func (s *SessionService) Logout(ctx context.Context, token string) error {
	claims, err := security.ParseSessionToken(token, s.cfg.SessionSecret)
	if err != nil {
		return nil
	}

	ttl := time.Until(claims.ExpiresAt.Time)
	if ttl <= 0 {
		return nil
	}
	if err := s.cache.Set(ctx, denylistKeyPrefix+claims.SessionID, claims.UserID, ttl).Err(); err != nil {
		return fmt.Errorf("denylist session: %w", err)
	}
	s.log.Info().Str("account_id", claims.UserID).Str("session_id", claims.SessionID).Msg("session revoked")
	return nil
}

// RevokeAll invalidates every session of the account issued up to now.
func (s *SessionService) RevokeAll(ctx context.Context, accountID string) error {
	now := s.now().UnixMilli()
	if err := s.cache.Set(ctx, epochKeyPrefix+accountID, now, s.cfg.SessionTTL+time.Minute).Err(); err != nil {
		return fmt.Errorf("bump session epoch: %w", err)
	}
	return nil
}
