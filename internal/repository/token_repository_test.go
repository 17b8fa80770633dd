package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelblog/internal/models"
)

var tokenColumnNames = []string{"account_id", "purpose", "token_hash", "payload", "expires_at", "consumed_at", "created_at"}

func TestTokenRepository_ConsumeMarksToken(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTokenRepository(mock)

	hash := []byte("hash")
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM account_tokens WHERE token_hash = \$1 FOR UPDATE`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows(tokenColumnNames).
			AddRow("acc-1", "email_verification", hash, (*string)(nil), now.Add(time.Hour), (*time.Time)(nil), now))
	mock.ExpectExec(`UPDATE account_tokens SET consumed_at`).
		WithArgs("acc-1", "email_verification", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	token, err := repo.Consume(context.Background(), hash, now, func(models.EphemeralToken) error { return nil })
	require.NoError(t, err)
	require.NotNil(t, token.ConsumedAt)
	assert.Equal(t, models.TokenPurposeEmailVerification, token.Purpose)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_ConsumeUnknownToken(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTokenRepository(mock)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM account_tokens WHERE token_hash = \$1 FOR UPDATE`).
		WithArgs([]byte("nope")).
		WillReturnRows(pgxmock.NewRows(tokenColumnNames))
	mock.ExpectRollback()

	_, err := repo.Consume(context.Background(), []byte("nope"), time.Now(), func(models.EphemeralToken) error { return nil })
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTokenRepository_ConsumeRejectedByCheck(t *testing.T) {
	mock := newMockPool(t)
	repo := NewTokenRepository(mock)

	hash := []byte("hash")
	now := time.Now()
	consumed := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM account_tokens WHERE token_hash = \$1 FOR UPDATE`).
		WithArgs(hash).
		WillReturnRows(pgxmock.NewRows(tokenColumnNames).
			AddRow("acc-1", "password_reset", hash, (*string)(nil), now.Add(time.Hour), &consumed, now))
	mock.ExpectRollback()

	used := errors.New("already used")
	_, err := repo.Consume(context.Background(), hash, now, func(t models.EphemeralToken) error {
		if t.ConsumedAt != nil {
			return used
		}
		return nil
	})
	assert.ErrorIs(t, err, used)
	assert.NoError(t, mock.ExpectationsWereMet())
}
