package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"travelblog/internal/models"
	"travelblog/internal/repository"
	"travelblog/internal/security"
)

// TokenService issues and redeems single-use tokens. Only hashes are stored;
// issuing a token for an (account, purpose) pair supersedes the previous one.
type TokenService struct {
	tokens TokenStore
	log    zerolog.Logger
	now    func() time.Time
}

func NewTokenService(tokens TokenStore, log zerolog.Logger) *TokenService {
	return &TokenService{tokens: tokens, log: log, now: time.Now}
}

func (s *TokenService) Issue(ctx context.Context, accountID string, purpose models.TokenPurpose, ttl time.Duration, payload *string) (string, error) {
	value, hash, err := security.GenerateOpaqueToken()
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	if err := s.tokens.Upsert(ctx, models.EphemeralToken{
		AccountID: accountID,
		Purpose:   purpose,
		TokenHash: hash,
		Payload:   payload,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}); err != nil {
		return "", fmt.Errorf("store %s token: %w", purpose, err)
	}
	return value, nil
}

// Redeem consumes the token and returns its payload. A token can be redeemed
// at most once; a concurrent second redeemer gets the same error as for an
// unknown token.
func (s *TokenService) Redeem(ctx context.Context, value string, accountID string, purpose models.TokenPurpose) (*string, error) {
	value = strings.TrimSpace(value)
	if value == "" || accountID == "" {
		return nil, errTokenInvalid
	}

	now := s.now().UTC()
	token, err := s.tokens.Consume(ctx, security.HashToken(value), now, func(t models.EphemeralToken) error {
		if t.ConsumedAt != nil {
			return errTokenInvalid
		}
		if t.AccountID != accountID || t.Purpose != purpose {
			return errTokenMismatch
		}
		if !now.Before(t.ExpiresAt) {
			return errTokenExpired
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrTokenNotFound) {
			return nil, errTokenInvalid
		}
		return nil, err
	}
	return token.Payload, nil
}

// PurgeExpired deletes rows that can no longer be redeemed. Validity never
// depends on this running.
func (s *TokenService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	removed, err := s.tokens.DeleteDead(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("purge tokens: %w", err)
	}
	return removed, nil
}
