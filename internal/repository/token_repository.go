package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"travelblog/internal/models"
)

var ErrTokenNotFound = errors.New("token not found")

const tokenColumns = `account_id, purpose, token_hash, payload, expires_at, consumed_at, created_at`

type TokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Upsert replaces the current token of (account, purpose), which supersedes
// any earlier token of that purpose.
func (r *TokenRepository) Upsert(ctx context.Context, token models.EphemeralToken) error {
	const query = `
		INSERT INTO account_tokens (account_id, purpose, token_hash, payload, expires_at, consumed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, NULL, $6)
		ON CONFLICT (account_id, purpose)
		DO UPDATE SET
			token_hash = EXCLUDED.token_hash,
			payload = EXCLUDED.payload,
			expires_at = EXCLUDED.expires_at,
			consumed_at = NULL,
			created_at = EXCLUDED.created_at
	`
	_, err := r.db.Exec(ctx, query,
		token.AccountID,
		string(token.Purpose),
		token.TokenHash,
		token.Payload,
		token.ExpiresAt,
		token.CreatedAt,
	)
	return err
}

// Consume locks the token row, lets check decide whether it may be redeemed
// and marks it consumed. Two concurrent consumers serialize on the row lock;
// the second one observes consumed_at and is rejected by check.
func (r *TokenRepository) Consume(ctx context.Context, tokenHash []byte, consumedAt time.Time, check func(models.EphemeralToken) error) (models.EphemeralToken, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const lockQuery = `SELECT ` + tokenColumns + ` FROM account_tokens WHERE token_hash = $1 FOR UPDATE`
	token, err := scanToken(tx.QueryRow(ctx, lockQuery, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.EphemeralToken{}, ErrTokenNotFound
		}
		return models.EphemeralToken{}, fmt.Errorf("lock token: %w", err)
	}

	if err := check(token); err != nil {
		return models.EphemeralToken{}, err
	}

	const consumeQuery = `
		UPDATE account_tokens SET consumed_at = $3
		WHERE account_id = $1 AND purpose = $2 AND consumed_at IS NULL
	`
	cmd, err := tx.Exec(ctx, consumeQuery, token.AccountID, string(token.Purpose), consumedAt)
	if err != nil {
		return models.EphemeralToken{}, fmt.Errorf("consume token: %w", err)
	}
	if cmd.RowsAffected() != 1 {
		return models.EphemeralToken{}, ErrTokenNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return models.EphemeralToken{}, fmt.Errorf("commit: %w", err)
	}

	token.ConsumedAt = &consumedAt
	return token, nil
}

// DeleteDead removes rows that can never be redeemed again.
func (r *TokenRepository) DeleteDead(ctx context.Context, before time.Time) (int64, error) {
	const query = `DELETE FROM account_tokens WHERE expires_at < $1 OR consumed_at IS NOT NULL`
	cmd, err := r.db.Exec(ctx, query, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func scanToken(row pgx.Row) (models.EphemeralToken, error) {
	var (
		token   models.EphemeralToken
		purpose string
	)
	if err := row.Scan(
		&token.AccountID,
		&purpose,
		&token.TokenHash,
		&token.Payload,
		&token.ExpiresAt,
		&token.ConsumedAt,
		&token.CreatedAt,
	); err != nil {
		return models.EphemeralToken{}, err
	}
	token.Purpose = models.TokenPurpose(purpose)
	return token, nil
}
