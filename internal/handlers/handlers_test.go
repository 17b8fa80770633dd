package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelblog/internal/config"
	"travelblog/internal/middleware"
	"travelblog/internal/models"
	"travelblog/internal/ratelimit"
	"travelblog/internal/repository"
	"travelblog/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var alice = models.Account{ID: "acc-alice", Username: "alice", Email: "alice@example.com", Verified: true, Role: models.UserRoleUser}

type stubAccounts struct {
	AccountFlows
	login       func(username, password string) (models.Account, error)
	verifyEmail func(token, accountID string) error
	setAvatar   func(accountID string, body io.Reader, size int64, declaredType string) (models.Account, error)
}

func (s stubAccounts) SetAvatar(_ context.Context, accountID string, body io.Reader, size int64, declaredType string) (models.Account, error) {
	return s.setAvatar(accountID, body, size, declaredType)
}

func (s stubAccounts) Login(_ context.Context, username, password string) (models.Account, error) {
	return s.login(username, password)
}

func (s stubAccounts) VerifyEmail(_ context.Context, token, accountID string) error {
	return s.verifyEmail(token, accountID)
}

type stubSessions struct {
	loggedOut []string
}

func (s *stubSessions) Issue(account models.Account) (service.IssuedSession, error) {
	return service.IssuedSession{Token: "sess-" + account.Username, SessionID: "sid", CSRFToken: "csrf-ok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (s *stubSessions) MintCSRF(string) (string, error) { return "csrf-ok", nil }

func (s *stubSessions) VerifyCSRF(session, cookie, header string) bool {
	return session != "" && cookie == "csrf-ok" && header == "csrf-ok"
}

func (s *stubSessions) Logout(_ context.Context, token string) error {
	s.loggedOut = append(s.loggedOut, token)
	return nil
}

func (s *stubSessions) Resolve(_ context.Context, token string) (models.Principal, error) {
	if token == "sess-alice" {
		return models.Principal{Kind: models.PrincipalUser, Account: alice, SessionID: "sid"}, nil
	}
	return models.Principal{}, service.ErrUnauthorized
}

type stubKeys struct {
	KeyLifecycle
	generate func(slot models.KeySlot) (service.GeneratedKey, error)
}

func (s stubKeys) Generate(_ context.Context, _ models.Principal, slot models.KeySlot) (service.GeneratedKey, error) {
	return s.generate(slot)
}

func (s stubKeys) Toggle(_ context.Context, actor models.Principal, accountID string, _ models.KeySlot, _ bool) ([]models.APIKeySlot, error) {
	if actor.Account.ID != accountID && !actor.IsAdmin() {
		return nil, service.ErrForbidden
	}
	return []models.APIKeySlot{{AccountID: accountID, Slot: models.KeySlotPrimary}}, nil
}

func (s stubKeys) Authenticate(_ context.Context, raw string) (models.Principal, error) {
	if raw == "tbk_good" {
		return models.Principal{Kind: models.PrincipalKeyBearer, Account: alice, KeySlot: models.KeySlotPrimary}, nil
	}
	return models.Principal{}, service.ErrUnauthorized
}

type stubCountries struct{}

func (stubCountries) List(context.Context) ([]models.Country, error) {
	return []models.Country{{Code: "PT", Name: "Portugal", Capital: "Lisbon", Region: "Europe", Population: 10_300_000}}, nil
}

func (stubCountries) GetByCode(_ context.Context, code string) (models.Country, error) {
	if code == "PT" {
		return models.Country{Code: "PT", Name: "Portugal"}, nil
	}
	return models.Country{}, repository.ErrCountryNotFound
}

type allowAll struct{}

func (allowAll) Allow(_ context.Context, _, _ string, p config.RateLimitPolicy) (ratelimit.Decision, error) {
	return ratelimit.Decision{Allowed: true, Limit: p.Limit, Remaining: p.Limit, ResetAt: time.Now().Add(p.Window)}, nil
}

type testServer struct {
	engine   *gin.Engine
	sessions *stubSessions
}

func newTestServer(accounts AccountFlows, keys stubKeys, checks map[string]func(context.Context) error) testServer {
	cfg := &config.AppConfig{
		Environment: "test",
		Security: config.SecurityConfig{
			SessionTTL:        time.Hour,
			SessionCookieName: "tb_session",
			CSRFCookieName:    "tb_csrf",
			SecureCookies:     true,
		},
		RateLimit: config.RateLimitConfig{
			Global: config.RateLimitPolicy{Limit: 100, Window: time.Minute},
			Auth:   config.RateLimitPolicy{Limit: 100, Window: time.Minute},
			Resend: config.RateLimitPolicy{Limit: 100, Window: time.Minute},
			APIKey: config.RateLimitPolicy{Limit: 100, Window: time.Minute},
		},
		Storage: config.StorageConfig{MaxAvatarSize: 1 << 20},
	}
	sessions := &stubSessions{}
	log := zerolog.Nop()

	h := NewHandlerSet(log, cfg, Dependencies{
		Accounts:  accounts,
		Keys:      keys,
		Sessions:  sessions,
		Countries: stubCountries{},
		Guard:     middleware.NewGuard(sessions, keys, cfg.Security.SessionCookieName, log),
		Limiter:   allowAll{},
		Checks:    checks,
	})

	engine := gin.New()
	h.Routes(engine.Group(""))
	return testServer{engine: engine, sessions: sessions}
}

func (s testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func authed(req *http.Request, withCSRF bool) *http.Request {
	req.AddCookie(&http.Cookie{Name: "tb_session", Value: "sess-alice"})
	if withCSRF {
		req.AddCookie(&http.Cookie{Name: "tb_csrf", Value: "csrf-ok"})
		req.Header.Set("X-CSRF-Token", "csrf-ok")
	}
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestLogin_SetsCookies(t *testing.T) {
	srv := newTestServer(stubAccounts{login: func(u, p string) (models.Account, error) {
		return alice, nil
	}}, stubKeys{}, nil)

	rec := srv.do(jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"correct horse"}`))
	require.Equal(t, http.StatusOK, rec.Code)

	cookies := map[string]*http.Cookie{}
	for _, c := range rec.Result().Cookies() {
		cookies[c.Name] = c
	}
	require.Contains(t, cookies, "tb_session")
	require.Contains(t, cookies, "tb_csrf")
	assert.True(t, cookies["tb_session"].HttpOnly)
	assert.True(t, cookies["tb_session"].Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookies["tb_session"].SameSite)
	assert.False(t, cookies["tb_csrf"].HttpOnly)
	assert.Equal(t, "csrf-ok", decode(t, rec)["csrfToken"])
}

func TestLogin_Unverified(t *testing.T) {
	srv := newTestServer(stubAccounts{login: func(u, p string) (models.Account, error) {
		return models.Account{}, &service.Error{Kind: service.KindForbidden, Code: "email_not_verified", Message: "verify first"}
	}}, stubKeys{}, nil)

	rec := srv.do(jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"correct horse"}`))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "email_not_verified", decode(t, rec)["error"])
	assert.Empty(t, rec.Result().Cookies())
}

func TestLogin_InternalErrorHidesDetail(t *testing.T) {
	srv := newTestServer(stubAccounts{login: func(u, p string) (models.Account, error) {
		return models.Account{}, errors.New("pq: connection refused")
	}}, stubKeys{}, nil)

	rec := srv.do(jsonRequest(http.MethodPost, "/auth/login", `{"username":"alice","password":"x"}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestVerifyEmail_BadTokenIs400(t *testing.T) {
	srv := newTestServer(stubAccounts{verifyEmail: func(token, id string) error {
		return &service.Error{Kind: service.KindNotFound, Code: "token_invalid", Message: "bad token"}
	}}, stubKeys{}, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/auth/verify-email?token=x&userId=y", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateAPIKey(t *testing.T) {
	now := time.Now().UTC()
	prefix := "tbk_abcdefgh"
	hash := "h"
	keys := stubKeys{generate: func(slot models.KeySlot) (service.GeneratedKey, error) {
		generated := models.APIKeySlot{AccountID: alice.ID, Slot: slot, KeyHash: &hash, KeyPrefix: &prefix, CreatedAt: &now, LastGeneratedAt: &now}
		return service.GeneratedKey{Key: "tbk_raw", Slot: generated, Slots: []models.APIKeySlot{generated}}, nil
	}}
	srv := newTestServer(stubAccounts{}, keys, nil)

	rec := srv.do(authed(jsonRequest(http.MethodPost, "/auth/generate-api-key", `{"key_type":"primary"}`), false))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "csrf_invalid", decode(t, rec)["error"])

	rec = srv.do(authed(jsonRequest(http.MethodPost, "/auth/generate-api-key", `{"key_type":"tertiary"}`), true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(authed(jsonRequest(http.MethodPost, "/auth/generate-api-key", `{"key_type":"primary"}`), true))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "tbk_raw", body["key"])
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	slots := body["apiKeys"].([]any)
	require.Len(t, slots, 1)
	assert.Equal(t, false, slots[0].(map[string]any)["isActive"])
	assert.Equal(t, prefix, slots[0].(map[string]any)["prefix"])
}

func TestGenerateAPIKey_Cooldown(t *testing.T) {
	resetAt := time.Now().Add(40 * time.Minute).UTC().Truncate(time.Second)
	keys := stubKeys{generate: func(models.KeySlot) (service.GeneratedKey, error) {
		return service.GeneratedKey{}, &service.Error{Kind: service.KindTooManyRequests, Code: "api_key_cooldown", Message: "wait", ResetAt: resetAt}
	}}
	srv := newTestServer(stubAccounts{}, keys, nil)

	rec := srv.do(authed(jsonRequest(http.MethodPost, "/auth/generate-api-key", `{"key_type":"secondary"}`), true))
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "api_key_cooldown", body["error"])
	assert.Equal(t, resetAt.Format(time.RFC3339), body["resetAt"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestToggleAPIKey_OtherUserForbidden(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	rec := srv.do(authed(jsonRequest(http.MethodPost, "/auth/toggle-api-key/acc-bob", `{"key_type":"primary","isActive":true}`), true))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = srv.do(authed(jsonRequest(http.MethodPost, "/auth/toggle-api-key/acc-alice", `{"key_type":"primary"}`), true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(authed(jsonRequest(http.MethodPost, "/auth/toggle-api-key/acc-alice", `{"key_type":"primary","isActive":false}`), true))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/admin/users", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = srv.do(authed(httptest.NewRequest(http.MethodGet, "/admin/users", nil), false))
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminCheck(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/auth/admin-check", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode(t, rec)["authenticated"])

	rec = srv.do(authed(httptest.NewRequest(http.MethodGet, "/auth/session", nil), false))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "authenticated", body["status"])
	assert.Equal(t, "user", body["principal"])
}

func TestLogout_ClearsCookiesAndRevokes(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	rec := srv.do(authed(jsonRequest(http.MethodPost, "/auth/logout", ""), true))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-alice"}, srv.sessions.loggedOut)
	for _, c := range rec.Result().Cookies() {
		assert.Empty(t, c.Value)
		assert.Less(t, c.MaxAge, 0)
	}
}

func TestCountries(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/api/countries/all", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/countries/all", nil)
	req.Header.Set("X-API-Key", "tbk_good")
	rec = srv.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["countries"], 1)

	req = httptest.NewRequest(http.MethodGet, "/api/countries/XX", nil)
	req.Header.Set("X-API-Key", "tbk_good")
	rec = srv.do(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "100", rec.Header().Get("X-RateLimit-Limit"))
}

func TestHealth(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, map[string]func(context.Context) error{
		"database": func(context.Context) error { return nil },
		"cache":    func(context.Context) error { return errors.New("down") },
	})

	rec := srv.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, "ok", body["checks"].(map[string]any)["database"])
}

func TestUploadAvatar_PassesDeclaredType(t *testing.T) {
	var (
		gotType string
		gotBody []byte
	)
	srv := newTestServer(stubAccounts{setAvatar: func(accountID string, body io.Reader, size int64, declaredType string) (models.Account, error) {
		gotType = declaredType
		gotBody, _ = io.ReadAll(body)
		return alice, nil
	}}, stubKeys{}, nil)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	part, err := form.CreatePart(map[string][]string{
		"Content-Disposition": {`form-data; name="file"; filename="me.png"`},
		"Content-Type":        {"image/png"},
	})
	require.NoError(t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\nrest"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/auth/profile/avatar", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	rec := srv.do(authed(req, true))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", gotType)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\nrest"), gotBody)
}

func TestUploadAvatar_MissingFile(t *testing.T) {
	srv := newTestServer(stubAccounts{}, stubKeys{}, nil)

	req := jsonRequest(http.MethodPost, "/auth/profile/avatar", `{}`)
	rec := srv.do(authed(req, true))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
