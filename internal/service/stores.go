package service

import (
	"context"
	"io"
	"time"

	"travelblog/internal/mail"
	"travelblog/internal/models"
	"travelblog/internal/repository"
)

// AccountStore is the persistence surface the account flows need.
type AccountStore interface {
	Create(ctx context.Context, account models.Account) error
	GetByID(ctx context.Context, id string) (models.Account, error)
	FindByUsername(ctx context.Context, username string) (models.Account, error)
	FindByEmail(ctx context.Context, email string) (models.Account, error)
	List(ctx context.Context, limit, offset int) ([]models.Account, error)
	UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.Account, error)
	UpdatePassword(ctx context.Context, id string, passwordHash []byte) error
	UpdateEmail(ctx context.Context, id string, email string) error
	MarkVerified(ctx context.Context, id string) error
	SetAvatarKey(ctx context.Context, id string, key *string) error
	Delete(ctx context.Context, id string) error
	EnsureAdmin(ctx context.Context, account models.Account) (bool, error)
}

type KeySlotStore interface {
	Mutate(ctx context.Context, accountID string, slot models.KeySlot, fn repository.SlotMutation) (models.APIKeySlot, error)
	ListByAccount(ctx context.Context, accountID string) ([]models.APIKeySlot, error)
	FindByHash(ctx context.Context, keyHash string) (models.APIKeySlot, error)
	TouchLastUsed(ctx context.Context, keyHash string) error
}

type TokenStore interface {
	Upsert(ctx context.Context, token models.EphemeralToken) error
	Consume(ctx context.Context, tokenHash []byte, consumedAt time.Time, check func(models.EphemeralToken) error) (models.EphemeralToken, error)
	DeleteDead(ctx context.Context, before time.Time) (int64, error)
}

type MailQueue interface {
	Enqueue(ctx context.Context, msg mail.Message) error
}

type AvatarStore interface {
	PutAvatar(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	RemoveAvatar(ctx context.Context, key string) error
	RemoveAccountObjects(ctx context.Context, accountID string) error
}

// SessionRevoker invalidates every session of an account issued so far.
type SessionRevoker interface {
	RevokeAll(ctx context.Context, accountID string) error
}
