package service

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"travelblog/internal/config"
	"travelblog/internal/mail"
	"travelblog/internal/models"
	"travelblog/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repositories. A single
// mutex plays the role of the row locks.
type memStore struct {
	mu       sync.Mutex
	accounts map[string]models.Account
	slots    map[string]map[models.KeySlot]models.APIKeySlot
	tokens   map[string]models.EphemeralToken
	touched  []string
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]models.Account{},
		slots:    map[string]map[models.KeySlot]models.APIKeySlot{},
		tokens:   map[string]models.EphemeralToken{},
	}
}

func (m *memStore) Create(_ context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Username, account.Username) {
			return repository.ErrUsernameTaken
		}
		if existing.Email == account.Email {
			return repository.ErrEmailTaken
		}
	}
	m.accounts[account.ID] = account
	m.slots[account.ID] = map[models.KeySlot]models.APIKeySlot{
		models.KeySlotPrimary:   {AccountID: account.ID, Slot: models.KeySlotPrimary},
		models.KeySlotSecondary: {AccountID: account.ID, Slot: models.KeySlotSecondary},
	}
	return nil
}

func (m *memStore) GetByID(_ context.Context, id string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return models.Account{}, repository.ErrAccountNotFound
	}
	return account, nil
}

func (m *memStore) find(match func(models.Account) bool) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if match(account) {
			return account, nil
		}
	}
	return models.Account{}, repository.ErrAccountNotFound
}

func (m *memStore) FindByUsername(_ context.Context, username string) (models.Account, error) {
	return m.find(func(a models.Account) bool { return strings.EqualFold(a.Username, username) })
}

func (m *memStore) FindByEmail(_ context.Context, email string) (models.Account, error) {
	return m.find(func(a models.Account) bool { return a.Email == email })
}

func (m *memStore) List(_ context.Context, limit, offset int) ([]models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Account
	for _, account := range m.accounts {
		out = append(out, account)
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) update(id string, fn func(*models.Account) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	if err := fn(&account); err != nil {
		return err
	}
	m.accounts[id] = account
	return nil
}

func (m *memStore) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.Account, error) {
	err := m.update(id, func(a *models.Account) error {
		if update.FirstName != nil {
			a.FirstName = *update.FirstName
		}
		if update.LastName != nil {
			a.LastName = *update.LastName
		}
		return nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return m.GetByID(ctx, id)
}

func (m *memStore) UpdatePassword(_ context.Context, id string, passwordHash []byte) error {
	return m.update(id, func(a *models.Account) error { a.PasswordHash = passwordHash; return nil })
}

func (m *memStore) UpdateEmail(_ context.Context, id string, email string) error {
	if other, err := m.FindByEmail(context.Background(), email); err == nil && other.ID != id {
		return repository.ErrEmailTaken
	}
	return m.update(id, func(a *models.Account) error { a.Email = email; return nil })
}

func (m *memStore) MarkVerified(_ context.Context, id string) error {
	return m.update(id, func(a *models.Account) error { a.Verified = true; return nil })
}

func (m *memStore) SetAvatarKey(_ context.Context, id string, key *string) error {
	return m.update(id, func(a *models.Account) error { a.AvatarKey = key; return nil })
}

func (m *memStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	delete(m.slots, id)
	for hash, token := range m.tokens {
		if token.AccountID == id {
			delete(m.tokens, hash)
		}
	}
	return nil
}

func (m *memStore) EnsureAdmin(ctx context.Context, account models.Account) (bool, error) {
	if existing, err := m.FindByUsername(ctx, account.Username); err == nil {
		return false, m.update(existing.ID, func(a *models.Account) error {
			a.Role = models.UserRoleAdmin
			a.Verified = true
			return nil
		})
	}
	account.Role = models.UserRoleAdmin
	account.Verified = true
	return true, m.Create(ctx, account)
}

func (m *memStore) Mutate(_ context.Context, accountID string, slot models.KeySlot, fn repository.SlotMutation) (models.APIKeySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.slots[accountID]
	if !ok {
		return models.APIKeySlot{}, repository.ErrSlotNotFound
	}
	next, err := fn(slots[slot])
	if err != nil {
		return models.APIKeySlot{}, err
	}
	next.AccountID = accountID
	next.Slot = slot
	slots[slot] = next
	return next, nil
}

func (m *memStore) ListByAccount(_ context.Context, accountID string) ([]models.APIKeySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slots, ok := m.slots[accountID]
	if !ok {
		return nil, nil
	}
	return []models.APIKeySlot{slots[models.KeySlotPrimary], slots[models.KeySlotSecondary]}, nil
}

func (m *memStore) FindByHash(_ context.Context, keyHash string) (models.APIKeySlot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, slots := range m.slots {
		for _, slot := range slots {
			if slot.KeyHash != nil && *slot.KeyHash == keyHash {
				return slot, nil
			}
		}
	}
	return models.APIKeySlot{}, repository.ErrSlotNotFound
}

func (m *memStore) TouchLastUsed(_ context.Context, keyHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched = append(m.touched, keyHash)
	return nil
}

func (m *memStore) Upsert(_ context.Context, token models.EphemeralToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for hash, existing := range m.tokens {
		if existing.AccountID == token.AccountID && existing.Purpose == token.Purpose {
			delete(m.tokens, hash)
		}
	}
	m.tokens[string(token.TokenHash)] = token
	return nil
}

func (m *memStore) Consume(_ context.Context, tokenHash []byte, consumedAt time.Time, check func(models.EphemeralToken) error) (models.EphemeralToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	token, ok := m.tokens[string(tokenHash)]
	if !ok {
		return models.EphemeralToken{}, repository.ErrTokenNotFound
	}
	if err := check(token); err != nil {
		return models.EphemeralToken{}, err
	}
	token.ConsumedAt = &consumedAt
	m.tokens[string(tokenHash)] = token
	return token, nil
}

func (m *memStore) DeleteDead(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var removed int64
	for hash, token := range m.tokens {
		if token.ExpiresAt.Before(before) || token.ConsumedAt != nil {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed, nil
}

type fakeMail struct {
	mu   sync.Mutex
	sent []mail.Message
}

func (f *fakeMail) Enqueue(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMail) last() mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return mail.Message{}
	}
	return f.sent[len(f.sent)-1]
}

type fakeAvatars struct {
	objects map[string][]byte
	purged  []string
}

func (f *fakeAvatars) PutAvatar(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return err
	}
	f.objects[key] = buf.Bytes()
	return nil
}

func (f *fakeAvatars) RemoveAvatar(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeAvatars) RemoveAccountObjects(_ context.Context, accountID string) error {
	f.purged = append(f.purged, accountID)
	return nil
}

type fakeRevoker struct {
	revoked []string
}

func (f *fakeRevoker) RevokeAll(_ context.Context, accountID string) error {
	f.revoked = append(f.revoked, accountID)
	return nil
}

type fixture struct {
	store   *memStore
	mail    *fakeMail
	avatars *fakeAvatars
	revoker *fakeRevoker
	tokens  *TokenService
	keys    *APIKeyService
	svc     *AccountService
	clock   *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			SessionSecret:        "0123456789abcdef0123456789abcdef",
			CSRFSecret:           "fedcba9876543210fedcba9876543210",
			SessionTTL:           12 * time.Hour,
			VerificationTTL:      24 * time.Hour,
			PasswordResetTTL:     time.Hour,
			ChangeConfirmTTL:     time.Hour,
			APIKeyCooldown:       time.Hour,
			RequireVerifiedLogin: true,
		},
		Storage: config.StorageConfig{MaxAvatarSize: 1 << 20},
	}
}

func newFixture() *fixture {
	cfg := testConfig()
	log := zerolog.Nop()
	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

	store := newMemStore()
	tokens := NewTokenService(store, log)
	tokens.now = clock.Now
	keys := NewAPIKeyService(store, store, cfg.Security.APIKeyCooldown, log)
	keys.now = clock.Now

	f := &fixture{
		store:   store,
		mail:    &fakeMail{},
		avatars: &fakeAvatars{objects: map[string][]byte{}},
		revoker: &fakeRevoker{},
		tokens:  tokens,
		keys:    keys,
		clock:   clock,
	}
	f.svc = NewAccountService(store, tokens, keys, f.revoker, f.mail, f.avatars, cfg, log)
	return f
}

func testConfigAdmin() config.AdminConfig {
	return config.AdminConfig{
		Username:  "siteadmin",
		Email:     "admin@example.com",
		Password:  "admin password",
		FirstName: "Site",
		LastName:  "Admin",
	}
}
