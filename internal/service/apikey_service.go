package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"travelblog/internal/models"
	"travelblog/internal/repository"
	"travelblog/internal/security"
)

const touchTimeout = 3 * time.Second

// GeneratedKey carries the only copy of a new key value that ever leaves the
// service, together with the fresh state of every slot.
type GeneratedKey struct {
	Key   string
	Slot  models.APIKeySlot
	Slots []models.APIKeySlot
}

// APIKeyService runs the two-slot key lifecycle. Every mutation is a single
// locked read-modify-write on the slot row and returns the slots as stored
// afterwards.
type APIKeyService struct {
	slots    KeySlotStore
	accounts AccountStore
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time
	touches  sync.WaitGroup
}

func NewAPIKeyService(slots KeySlotStore, accounts AccountStore, cooldown time.Duration, log zerolog.Logger) *APIKeyService {
	return &APIKeyService{
		slots:    slots,
		accounts: accounts,
		cooldown: cooldown,
		log:      log,
		now:      time.Now,
	}
}

// Generate replaces the key in one of the caller's own slots, subject to the
// per-slot cooldown.
func (s *APIKeyService) Generate(ctx context.Context, actor models.Principal, slot models.KeySlot) (GeneratedKey, error) {
	return s.generate(ctx, actor.Account.ID, slot, true)
}

// AdminGenerate replaces a key of any account without the cooldown.
func (s *APIKeyService) AdminGenerate(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot) (GeneratedKey, error) {
	if !actor.IsAdmin() {
		return GeneratedKey{}, ErrForbidden
	}
	return s.generate(ctx, accountID, slot, false)
}

// Provision fills the primary slot of a freshly created account.
func (s *APIKeyService) Provision(ctx context.Context, accountID string) (GeneratedKey, error) {
	return s.generate(ctx, accountID, models.KeySlotPrimary, false)
}

func (s *APIKeyService) generate(ctx context.Context, accountID string, slot models.KeySlot, enforceCooldown bool) (GeneratedKey, error) {
	var raw string
	updated, err := s.slots.Mutate(ctx, accountID, slot, func(current models.APIKeySlot) (models.APIKeySlot, error) {
		now := s.now().UTC()
		anchor := current.CooldownFrom
		if anchor == nil {
			anchor = current.LastGeneratedAt
		}
		if enforceCooldown && anchor != nil {
			resetAt := anchor.Add(s.cooldown)
			if now.Before(resetAt) {
				return current, cooldownError(resetAt)
			}
		}

		value, hash, prefix, err := security.GenerateAPIKey()
		if err != nil {
			return current, err
		}
		raw = value
		return models.APIKeySlot{
			KeyHash:         &hash,
			KeyPrefix:       &prefix,
			IsActive:        false,
			CreatedAt:       &now,
			LastGeneratedAt: &now,
			CooldownFrom:    &now,
		}, nil
	})
	if err != nil {
		return GeneratedKey{}, s.mapSlotError(err)
	}

	s.log.Info().Str("account_id", accountID).Str("slot", string(slot)).Msg("api key generated")

	slots, err := s.slots.ListByAccount(ctx, accountID)
	if err != nil {
		return GeneratedKey{}, err
	}
	return GeneratedKey{Key: raw, Slot: updated, Slots: slots}, nil
}

// Toggle sets the activation flag. Repeating the same value is a no-op that
// still succeeds.
func (s *APIKeyService) Toggle(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot, active bool) ([]models.APIKeySlot, error) {
	if err := authorizeSlotOwner(actor, accountID); err != nil {
		return nil, err
	}

	_, err := s.slots.Mutate(ctx, accountID, slot, func(current models.APIKeySlot) (models.APIKeySlot, error) {
		if current.Empty() {
			return current, errSlotEmpty
		}
		current.IsActive = active
		return current, nil
	})
	if err != nil {
		return nil, s.mapSlotError(err)
	}

	s.log.Info().Str("account_id", accountID).Str("slot", string(slot)).Bool("active", active).Msg("api key toggled")
	return s.slots.ListByAccount(ctx, accountID)
}

// Revoke empties the slot. The key stops authenticating as soon as the
// transaction commits. The cooldown anchor is kept so that revoking does not
// reopen generation early.
func (s *APIKeyService) Revoke(ctx context.Context, actor models.Principal, accountID string, slot models.KeySlot) ([]models.APIKeySlot, error) {
	if err := authorizeSlotOwner(actor, accountID); err != nil {
		return nil, err
	}

	_, err := s.slots.Mutate(ctx, accountID, slot, func(current models.APIKeySlot) (models.APIKeySlot, error) {
		if current.Empty() {
			return current, errSlotEmpty
		}
		return models.APIKeySlot{CooldownFrom: current.CooldownFrom}, nil
	})
	if err != nil {
		return nil, s.mapSlotError(err)
	}

	s.log.Info().Str("account_id", accountID).Str("slot", string(slot)).Msg("api key revoked")
	return s.slots.ListByAccount(ctx, accountID)
}

func (s *APIKeyService) List(ctx context.Context, actor models.Principal, accountID string) ([]models.APIKeySlot, error) {
	if err := authorizeSlotOwner(actor, accountID); err != nil {
		return nil, err
	}
	slots, err := s.slots.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, errAccountNotFound
	}
	return slots, nil
}

// Authenticate resolves a presented key to a key-bearer principal. Unknown
// and inactive keys are rejected alike.
func (s *APIKeyService) Authenticate(ctx context.Context, raw string) (models.Principal, error) {
	if !security.LooksLikeAPIKey(raw) {
		return models.Principal{}, errInvalidAPIKey
	}

	hash := security.HashAPIKey(raw)
	slot, err := s.slots.FindByHash(ctx, hash)
	if err != nil {
		if errors.Is(err, repository.ErrSlotNotFound) {
			return models.Principal{}, errInvalidAPIKey
		}
		return models.Principal{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !slot.IsActive {
		return models.Principal{}, errInvalidAPIKey
	}

	account, err := s.accounts.GetByID(ctx, slot.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Principal{}, errInvalidAPIKey
		}
		return models.Principal{}, fmt.Errorf("load key owner: %w", err)
	}

	s.touchLastUsed(hash, account.ID)

	return models.Principal{Kind: models.PrincipalKeyBearer, Account: account, KeySlot: slot.Slot}, nil
}

// touchLastUsed records usage off the request path; failures only cost
// timestamp accuracy.
func (s *APIKeyService) touchLastUsed(hash string, accountID string) {
	s.touches.Add(1)
	go func() {
		defer s.touches.Done()
		ctx, cancel := context.WithTimeout(context.Background(), touchTimeout)
		defer cancel()
		if err := s.slots.TouchLastUsed(ctx, hash); err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("update api key last use failed")
		}
	}()
}

// Drain waits for pending last-use updates.
func (s *APIKeyService) Drain() {
	s.touches.Wait()
}

func (s *APIKeyService) mapSlotError(err error) error {
	if errors.Is(err, repository.ErrSlotNotFound) {
		return errAccountNotFound
	}
	return err
}

func authorizeSlotOwner(actor models.Principal, accountID string) error {
	if actor.Account.ID == accountID || actor.IsAdmin() {
		return nil
	}
	return ErrForbidden
}
