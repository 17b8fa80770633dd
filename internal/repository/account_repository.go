package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"travelblog/internal/models"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUsernameTaken   = errors.New("username already registered")
	ErrEmailTaken      = errors.New("email already registered")
)

const accountColumns = `id, username, email, password_hash, first_name, last_name, verified, role, avatar_key, created_at, updated_at`

type AccountRepository struct {
	db DB
}

func NewAccountRepository(db DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts the account together with its two empty key slots so later
// lifecycle operations always have a row to lock.
func (r *AccountRepository) Create(ctx context.Context, account models.Account) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	const insertAccount = `
		INSERT INTO accounts (
			id, username, email, password_hash, first_name, last_name, verified, role, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`
	if _, err := tx.Exec(ctx, insertAccount,
		account.ID,
		account.Username,
		account.Email,
		account.PasswordHash,
		account.FirstName,
		account.LastName,
		account.Verified,
		string(account.Role),
	); err != nil {
		return mapAccountConflict(err)
	}

	const insertSlots = `
		INSERT INTO api_keys (account_id, slot) VALUES ($1, 'primary'), ($1, 'secondary')
		ON CONFLICT (account_id, slot) DO NOTHING
	`
	if _, err := tx.Exec(ctx, insertSlots, account.ID); err != nil {
		return fmt.Errorf("create key slots: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
}

func (r *AccountRepository) FindByUsername(ctx context.Context, username string) (models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE LOWER(username) = LOWER($1)`, username)
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (models.Account, error) {
	return r.findOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email)
}

func (r *AccountRepository) List(ctx context.Context, limit, offset int) ([]models.Account, error) {
	const query = `SELECT ` + accountColumns + ` FROM accounts ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

func (r *AccountRepository) UpdateProfile(ctx context.Context, id string, update models.ProfileUpdate) (models.Account, error) {
	const query = `
		UPDATE accounts
		SET first_name = COALESCE($2, first_name),
		    last_name = COALESCE($3, last_name),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING ` + accountColumns
	return r.findOne(ctx, query, id, update.FirstName, update.LastName)
}

func (r *AccountRepository) UpdatePassword(ctx context.Context, id string, passwordHash []byte) error {
	const query = `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, passwordHash)
}

func (r *AccountRepository) UpdateEmail(ctx context.Context, id string, email string) error {
	const query = `UPDATE accounts SET email = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, email)
	if err != nil {
		return mapAccountConflict(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *AccountRepository) MarkVerified(ctx context.Context, id string) error {
	const query = `UPDATE accounts SET verified = TRUE, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id)
}

func (r *AccountRepository) SetAvatarKey(ctx context.Context, id string, key *string) error {
	const query = `UPDATE accounts SET avatar_key = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, query, id, key)
}

// Delete removes the account; key slots and tokens go with it through
// ON DELETE CASCADE.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM accounts WHERE id = $1`, id)
}

// EnsureAdmin creates the bootstrap admin if no account holds its username,
// and otherwise promotes it to a verified admin without touching the password.
func (r *AccountRepository) EnsureAdmin(ctx context.Context, account models.Account) (bool, error) {
	existing, err := r.FindByUsername(ctx, account.Username)
	if err == nil {
		if existing.Role == models.UserRoleAdmin && existing.Verified {
			return false, nil
		}
		const promote = `UPDATE accounts SET role = 'admin', verified = TRUE, updated_at = NOW() WHERE id = $1`
		return false, r.execOne(ctx, promote, existing.ID)
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return false, err
	}

	account.Role = models.UserRoleAdmin
	account.Verified = true
	if err := r.Create(ctx, account); err != nil {
		return false, err
	}
	return true, nil
}

func (r *AccountRepository) findOne(ctx context.Context, query string, args ...any) (models.Account, error) {
	account, err := scanAccount(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Account{}, ErrAccountNotFound
		}
		return models.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	cmd, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (models.Account, error) {
	var (
		account   models.Account
		role      string
		avatarKey *string
		createdAt time.Time
		updatedAt time.Time
	)
	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.FirstName,
		&account.LastName,
		&account.Verified,
		&role,
		&avatarKey,
		&createdAt,
		&updatedAt,
	); err != nil {
		return models.Account{}, err
	}
	account.Role = models.UserRole(role)
	account.AvatarKey = avatarKey
	account.CreatedAt = createdAt
	account.UpdatedAt = updatedAt
	return account, nil
}

func mapAccountConflict(err error) error {
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	switch constraint {
	case "accounts_username_unique":
		return ErrUsernameTaken
	case "accounts_email_unique":
		return ErrEmailTaken
	}
	return fmt.Errorf("unique violation on %s: %w", constraint, err)
}
