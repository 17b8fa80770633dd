package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"travelblog/internal/models"
)

func TestTokenService_RedeemOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	payload := "new@example.com"
	value, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposeEmailChange, time.Hour, &payload)
	require.NoError(t, err)

	got, err := f.tokens.Redeem(ctx, value, "acc-1", models.TokenPurposeEmailChange)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, payload, *got)

	_, err = f.tokens.Redeem(ctx, value, "acc-1", models.TokenPurposeEmailChange)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTokenService_RedeemRejections(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown", func(t *testing.T) {
		f := newFixture()
		_, err := f.tokens.Redeem(ctx, "does-not-exist", "acc-1", models.TokenPurposePasswordReset)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("other account", func(t *testing.T) {
		f := newFixture()
		value, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)
		_, err = f.tokens.Redeem(ctx, value, "acc-2", models.TokenPurposePasswordReset)
		assert.ErrorIs(t, err, ErrMismatch)
	})

	t.Run("other purpose", func(t *testing.T) {
		f := newFixture()
		value, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)
		_, err = f.tokens.Redeem(ctx, value, "acc-1", models.TokenPurposeEmailVerification)
		assert.ErrorIs(t, err, ErrMismatch)
	})

	t.Run("expired", func(t *testing.T) {
		f := newFixture()
		value, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposePasswordReset, time.Hour, nil)
		require.NoError(t, err)
		f.clock.Advance(time.Hour)
		_, err = f.tokens.Redeem(ctx, value, "acc-1", models.TokenPurposePasswordReset)
		assert.ErrorIs(t, err, ErrExpired)
	})

	t.Run("superseded", func(t *testing.T) {
		f := newFixture()
		first, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposeEmailVerification, time.Hour, nil)
		require.NoError(t, err)
		second, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposeEmailVerification, time.Hour, nil)
		require.NoError(t, err)

		_, err = f.tokens.Redeem(ctx, first, "acc-1", models.TokenPurposeEmailVerification)
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = f.tokens.Redeem(ctx, second, "acc-1", models.TokenPurposeEmailVerification)
		assert.NoError(t, err)
	})
}

func TestTokenService_ConcurrentRedeemHasOneWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	value, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposePasswordReset, time.Hour, nil)
	require.NoError(t, err)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.tokens.Redeem(ctx, value, "acc-1", models.TokenPurposePasswordReset); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestTokenService_PurgeExpired(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	used, err := f.tokens.Issue(ctx, "acc-1", models.TokenPurposePasswordReset, time.Hour, nil)
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, "acc-2", models.TokenPurposePasswordReset, time.Minute, nil)
	require.NoError(t, err)
	_, err = f.tokens.Issue(ctx, "acc-3", models.TokenPurposePasswordReset, 48*time.Hour, nil)
	require.NoError(t, err)
	_, err = f.tokens.Redeem(ctx, used, "acc-1", models.TokenPurposePasswordReset)
	require.NoError(t, err)

	removed, err := f.tokens.PurgeExpired(ctx, f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
}
