package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"travelblog/internal/models"
)

var ErrSlotNotFound = errors.New("api key slot not found")

const slotColumns = `account_id, slot, key_hash, key_prefix, is_active, created_at, last_used_at, last_generated_at, cooldown_from`

type APIKeyRepository struct {
	db DB
}

func NewAPIKeyRepository(db DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// SlotMutation receives the locked current slot and returns its next state.
// Returning an error aborts the transaction without writing.
type SlotMutation func(current models.APIKeySlot) (models.APIKeySlot, error)

// Mutate applies fn as an atomic read-modify-write on one slot row. Concurrent
// callers on the same slot serialize on the row lock, so every mutation sees
// the state left by the previous one.
func (r *APIKeyRepository) Mutate(ctx context.Context, accountID string, slot models.KeySlot, fn SlotMutation) (models.APIKeySlot, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.APIKeySlot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const lockQuery = `SELECT ` + slotColumns + ` FROM api_keys WHERE account_id = $1 AND slot = $2 FOR UPDATE`
	current, err := scanSlot(tx.QueryRow(ctx, lockQuery, accountID, string(slot)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.APIKeySlot{}, ErrSlotNotFound
		}
		return models.APIKeySlot{}, fmt.Errorf("lock slot: %w", err)
	}

	next, err := fn(current)
	if err != nil {
		return models.APIKeySlot{}, err
	}

	const updateQuery = `
		UPDATE api_keys
		SET key_hash = $3,
		    key_prefix = $4,
		    is_active = $5,
		    created_at = $6,
		    last_used_at = $7,
		    last_generated_at = $8,
		    cooldown_from = $9
		WHERE account_id = $1 AND slot = $2
	`
	if _, err := tx.Exec(ctx, updateQuery,
		accountID,
		string(slot),
		next.KeyHash,
		next.KeyPrefix,
		next.IsActive,
		next.CreatedAt,
		next.LastUsedAt,
		next.LastGeneratedAt,
		next.CooldownFrom,
	); err != nil {
		return models.APIKeySlot{}, fmt.Errorf("update slot: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.APIKeySlot{}, fmt.Errorf("commit: %w", err)
	}

	next.AccountID = accountID
	next.Slot = slot
	return next, nil
}

func (r *APIKeyRepository) ListByAccount(ctx context.Context, accountID string) ([]models.APIKeySlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM api_keys WHERE account_id = $1 ORDER BY slot`

	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var slots []models.APIKeySlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

// FindByHash looks the presented key up across every slot of every account.
func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (models.APIKeySlot, error) {
	const query = `SELECT ` + slotColumns + ` FROM api_keys WHERE key_hash = $1`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, keyHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.APIKeySlot{}, ErrSlotNotFound
		}
		return models.APIKeySlot{}, err
	}
	return slot, nil
}

// TouchLastUsed only updates a slot that still holds the same active key, so
// a late update can never resurrect timestamps on a revoked slot.
func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, keyHash string) error {
	const query = `UPDATE api_keys SET last_used_at = NOW() WHERE key_hash = $1 AND is_active`
	_, err := r.db.Exec(ctx, query, keyHash)
	return err
}

func scanSlot(row pgx.Row) (models.APIKeySlot, error) {
	var (
		slot     models.APIKeySlot
		slotName string
	)
	if err := row.Scan(
		&slot.AccountID,
		&slotName,
		&slot.KeyHash,
		&slot.KeyPrefix,
		&slot.IsActive,
		&slot.CreatedAt,
		&slot.LastUsedAt,
		&slot.LastGeneratedAt,
		&slot.CooldownFrom,
	); err != nil {
		return models.APIKeySlot{}, err
	}
	slot.Slot = models.KeySlot(slotName)
	return slot, nil
}
