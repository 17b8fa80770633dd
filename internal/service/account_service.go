package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"travelblog/internal/config"
	"travelblog/internal/ids"
	outbox "travelblog/internal/mail"
	"travelblog/internal/media/sniffer"
	"travelblog/internal/models"
	"travelblog/internal/repository"
	"travelblog/internal/security"
	"travelblog/internal/storage"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 128
	maxNameLength     = 64
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,32}$`)

type AccountService struct {
	accounts      AccountStore
	tokens        *TokenService
	keys          *APIKeyService
	sessions      SessionRevoker
	mail          MailQueue
	avatars       AvatarStore
	cfg           config.SecurityConfig
	maxAvatarSize int64
	log           zerolog.Logger

	// dummyHash keeps login timing flat for unknown usernames.
	dummyHash []byte
}

func NewAccountService(
	accounts AccountStore,
	tokens *TokenService,
	keys *APIKeyService,
	sessions SessionRevoker,
	mailQueue MailQueue,
	avatars AvatarStore,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *AccountService {
	dummy, err := security.HashPassword(ids.New())
	if err != nil {
		log.Warn().Err(err).Msg("compute dummy password hash failed")
	}
	return &AccountService{
		accounts:      accounts,
		tokens:        tokens,
		keys:          keys,
		sessions:      sessions,
		mail:          mailQueue,
		avatars:       avatars,
		cfg:           cfg.Security,
		maxAvatarSize: cfg.Storage.MaxAvatarSize,
		log:           log,
		dummyHash:     dummy,
	}
}

type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

type RegisterResult struct {
	Account models.Account
	// Key is the initial primary key value. It is inactive until the owner
	// enables it and is never shown again.
	Key string
}

func (s *AccountService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	input.Username = strings.TrimSpace(input.Username)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)

	if !usernamePattern.MatchString(input.Username) {
		return RegisterResult{}, validationError("username must be 3-32 letters, digits, dots, dashes or underscores")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return RegisterResult{}, err
	}
	if err := validatePassword(input.Password); err != nil {
		return RegisterResult{}, err
	}
	if err := validateName(input.FirstName); err != nil {
		return RegisterResult{}, err
	}
	if err := validateName(input.LastName); err != nil {
		return RegisterResult{}, err
	}

	if _, err := s.accounts.FindByUsername(ctx, input.Username); err == nil {
		return RegisterResult{}, errUsernameTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return RegisterResult{}, err
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return RegisterResult{}, errEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return RegisterResult{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return RegisterResult{}, err
	}

	account := models.Account{
		ID:           ids.New(),
		Username:     input.Username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    input.FirstName,
		LastName:     input.LastName,
		Verified:     false,
		Role:         models.UserRoleUser,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return RegisterResult{}, mapConflict(err)
	}

	result := RegisterResult{Account: account}
	generated, err := s.keys.Provision(ctx, account.ID)
	if err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("provision primary api key failed")
	} else {
		result.Key = generated.Key
	}

	if err := s.sendToken(ctx, account, account.Email, models.TokenPurposeEmailVerification, outbox.KindVerifyEmail, s.cfg.VerificationTTL, nil); err != nil {
		s.log.Error().Err(err).Str("account_id", account.ID).Msg("send verification mail failed")
	}

	s.log.Info().Str("account_id", account.ID).Msg("account registered")
	return result, nil
}

// Login checks the credentials. Session issuing is left to the caller.
func (s *AccountService) Login(ctx context.Context, username, password string) (models.Account, error) {
	account, err := s.accounts.FindByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			_, _ = security.VerifyPassword(password, s.dummyHash)
			return models.Account{}, errInvalidCredentials
		}
		return models.Account{}, err
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		return models.Account{}, errInvalidCredentials
	}
	if !account.Verified && s.cfg.RequireVerifiedLogin {
		return models.Account{}, errEmailNotVerified
	}
	return account, nil
}

func (s *AccountService) VerifyEmail(ctx context.Context, token, accountID string) error {
	if _, err := s.tokens.Redeem(ctx, token, accountID, models.TokenPurposeEmailVerification); err != nil {
		return err
	}
	if err := s.accounts.MarkVerified(ctx, accountID); err != nil {
		return mapAccountError(err)
	}
	s.log.Info().Str("account_id", accountID).Msg("email verified")
	return nil
}

// ResendVerification answers the same way whether or not the address is
// known, so it cannot be used to discover which accounts exist.
func (s *AccountService) ResendVerification(ctx context.Context, email string) error {
	account, ok, err := s.lookupByEmail(ctx, email)
	if err != nil || !ok || account.Verified {
		return err
	}
	return s.sendToken(ctx, account, account.Email, models.TokenPurposeEmailVerification, outbox.KindVerifyEmail, s.cfg.VerificationTTL, nil)
}

func (s *AccountService) ForgotPassword(ctx context.Context, email string) error {
	account, ok, err := s.lookupByEmail(ctx, email)
	if err != nil || !ok {
		return err
	}
	return s.sendToken(ctx, account, account.Email, models.TokenPurposePasswordReset, outbox.KindResetPassword, s.cfg.PasswordResetTTL, nil)
}

func (s *AccountService) ResetPassword(ctx context.Context, token, accountID, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if _, err := s.tokens.Redeem(ctx, token, accountID, models.TokenPurposePasswordReset); err != nil {
		return err
	}
	return s.storePassword(ctx, accountID, passwordHash)
}

type PasswordChangeInput struct {
	CurrentPassword string
	NewPassword     string
	Email           string
}

// RequestPasswordChange stages the new password hash in a confirmation token
// mailed to the account address. The password only changes once the token is
// redeemed.
func (s *AccountService) RequestPasswordChange(ctx context.Context, accountID string, input PasswordChangeInput) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return mapAccountError(err)
	}
	if err := s.checkPassword(account, input.CurrentPassword); err != nil {
		return err
	}
	if !strings.EqualFold(strings.TrimSpace(input.Email), account.Email) {
		return validationError("email does not match the account")
	}
	if err := validatePassword(input.NewPassword); err != nil {
		return err
	}
	if input.NewPassword == input.CurrentPassword {
		return validationError("new password must differ from the current one")
	}

	passwordHash, err := security.HashPassword(input.NewPassword)
	if err != nil {
		return err
	}
	payload := string(passwordHash)
	return s.sendToken(ctx, account, account.Email, models.TokenPurposePasswordChange, outbox.KindConfirmPasswordChange, s.cfg.ChangeConfirmTTL, &payload)
}

func (s *AccountService) ConfirmPasswordChange(ctx context.Context, token, accountID string) error {
	payload, err := s.tokens.Redeem(ctx, token, accountID, models.TokenPurposePasswordChange)
	if err != nil {
		return err
	}
	if payload == nil || *payload == "" {
		return errTokenInvalid
	}
	return s.storePassword(ctx, accountID, []byte(*payload))
}

// RequestEmailChange mails a confirmation token to the new address.
func (s *AccountService) RequestEmailChange(ctx context.Context, accountID, newEmail, currentPassword string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return mapAccountError(err)
	}
	if err := s.checkPassword(account, currentPassword); err != nil {
		return err
	}
	email, err := normalizeEmail(newEmail)
	if err != nil {
		return err
	}
	if email == account.Email {
		return validationError("new email matches the current one")
	}
	if _, err := s.accounts.FindByEmail(ctx, email); err == nil {
		return errEmailTaken
	} else if !errors.Is(err, repository.ErrAccountNotFound) {
		return err
	}

	return s.sendToken(ctx, account, email, models.TokenPurposeEmailChange, outbox.KindConfirmEmailChange, s.cfg.ChangeConfirmTTL, &email)
}

// ConfirmEmailChange applies the staged address. The address may have been
// taken since the request, which surfaces as a conflict.
func (s *AccountService) ConfirmEmailChange(ctx context.Context, token, accountID string) (string, error) {
	payload, err := s.tokens.Redeem(ctx, token, accountID, models.TokenPurposeEmailChange)
	if err != nil {
		return "", err
	}
	if payload == nil || *payload == "" {
		return "", errTokenInvalid
	}
	if err := s.accounts.UpdateEmail(ctx, accountID, *payload); err != nil {
		return "", mapAccountError(mapConflict(err))
	}
	s.log.Info().Str("account_id", accountID).Msg("email changed")
	return *payload, nil
}

func (s *AccountService) Profile(ctx context.Context, accountID string) (models.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, mapAccountError(err)
	}
	return account, nil
}

// UpdateProfile only touches the display names.
func (s *AccountService) UpdateProfile(ctx context.Context, accountID string, update models.ProfileUpdate) (models.Account, error) {
	for _, field := range []*string{update.FirstName, update.LastName} {
		if field == nil {
			continue
		}
		*field = strings.TrimSpace(*field)
		if err := validateName(*field); err != nil {
			return models.Account{}, err
		}
	}
	account, err := s.accounts.UpdateProfile(ctx, accountID, update)
	if err != nil {
		return models.Account{}, mapAccountError(err)
	}
	return account, nil
}

// SetAvatar stores an image as the account avatar after checking its magic
// bytes, then drops the previous avatar object.
func (s *AccountService) SetAvatar(ctx context.Context, accountID string, body io.Reader, size int64, declaredType string) (models.Account, error) {
	if s.avatars == nil {
		return models.Account{}, newError(KindNotFound, "avatars_disabled", "avatar storage is not configured")
	}
	if size <= 0 {
		return models.Account{}, validationError("empty file")
	}
	if size > s.maxAvatarSize {
		return models.Account{}, validationError(fmt.Sprintf("avatar must be at most %d bytes", s.maxAvatarSize))
	}

	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return models.Account{}, mapAccountError(err)
	}

	detected, head, err := sniffer.Detect(body)
	if err != nil {
		if errors.Is(err, sniffer.ErrUnsupportedImage) {
			return models.Account{}, validationError("avatar must be a jpeg, png, gif or webp image")
		}
		return models.Account{}, fmt.Errorf("read avatar: %w", err)
	}
	if declaredType != "" && declaredType != detected.MIME {
		return models.Account{}, validationError(fmt.Sprintf("content type mismatch: declared %s, actual %s", declaredType, detected.MIME))
	}

	key := storage.AvatarKey(accountID, ids.New(), detected.Extension())
	if err := s.avatars.PutAvatar(ctx, key, io.MultiReader(bytes.NewReader(head), body), size, detected.MIME); err != nil {
		return models.Account{}, err
	}
	if err := s.accounts.SetAvatarKey(ctx, accountID, &key); err != nil {
		return models.Account{}, mapAccountError(err)
	}

	if previous := account.AvatarKey; previous != nil && *previous != key {
		if err := s.avatars.RemoveAvatar(ctx, *previous); err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("remove previous avatar failed")
		}
	}

	account.AvatarKey = &key
	return account, nil
}

// DeleteOwnAccount requires the current password.
func (s *AccountService) DeleteOwnAccount(ctx context.Context, accountID, password string) error {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return mapAccountError(err)
	}
	if err := s.checkPassword(account, password); err != nil {
		return err
	}
	return s.deleteAccount(ctx, accountID)
}

// AdminDeleteAccount removes another account. Admins delete their own
// account through DeleteOwnAccount.
func (s *AccountService) AdminDeleteAccount(ctx context.Context, actor models.Principal, accountID string) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	if actor.Account.ID == accountID {
		return newError(KindForbidden, "self_delete", "use the account settings to delete your own account")
	}
	return s.deleteAccount(ctx, accountID)
}

func (s *AccountService) deleteAccount(ctx context.Context, accountID string) error {
	if err := s.accounts.Delete(ctx, accountID); err != nil {
		return mapAccountError(err)
	}

	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("revoke sessions of deleted account failed")
	}
	if s.avatars != nil {
		if err := s.avatars.RemoveAccountObjects(ctx, accountID); err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("remove avatar objects failed")
		}
	}

	s.log.Info().Str("account_id", accountID).Msg("account deleted")
	return nil
}

func (s *AccountService) ListAccounts(ctx context.Context, limit, offset int) ([]models.Account, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.accounts.List(ctx, limit, offset)
}

// EnsureAdmin creates or promotes the bootstrap admin account.
func (s *AccountService) EnsureAdmin(ctx context.Context, cfg config.AdminConfig) (bool, error) {
	email, err := normalizeEmail(cfg.Email)
	if err != nil {
		return false, fmt.Errorf("admin email: %w", err)
	}
	passwordHash, err := security.HashPassword(cfg.Password)
	if err != nil {
		return false, err
	}

	created, err := s.accounts.EnsureAdmin(ctx, models.Account{
		ID:           ids.New(),
		Username:     cfg.Username,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    cfg.FirstName,
		LastName:     cfg.LastName,
	})
	if err != nil {
		return false, fmt.Errorf("ensure admin: %w", mapConflict(err))
	}
	return created, nil
}

func (s *AccountService) storePassword(ctx context.Context, accountID string, passwordHash []byte) error {
	if err := s.accounts.UpdatePassword(ctx, accountID, passwordHash); err != nil {
		return mapAccountError(err)
	}
	if err := s.sessions.RevokeAll(ctx, accountID); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("revoke sessions after password change failed")
	}
	s.log.Info().Str("account_id", accountID).Msg("password changed")
	return nil
}

func (s *AccountService) sendToken(
	ctx context.Context,
	account models.Account,
	to string,
	purpose models.TokenPurpose,
	kind outbox.Kind,
	ttl time.Duration,
	payload *string,
) error {
	token, err := s.tokens.Issue(ctx, account.ID, purpose, ttl, payload)
	if err != nil {
		return err
	}
	return s.mail.Enqueue(ctx, outbox.Message{
		Kind:      kind,
		To:        to,
		AccountID: account.ID,
		Username:  account.Username,
		Token:     token,
	})
}

func (s *AccountService) lookupByEmail(ctx context.Context, raw string) (models.Account, bool, error) {
	email, err := normalizeEmail(raw)
	if err != nil {
		return models.Account{}, false, err
	}
	account, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return models.Account{}, false, nil
		}
		return models.Account{}, false, err
	}
	return account, true, nil
}

func (s *AccountService) checkPassword(account models.Account, password string) error {
	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil || !ok {
		return errWrongPassword
	}
	return nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || len(raw) > 254 {
		return "", validationError("a valid email address is required")
	}
	return strings.ToLower(raw), nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLength || n > maxPasswordLength {
		return validationError(fmt.Sprintf("password must be %d-%d characters", minPasswordLength, maxPasswordLength))
	}
	return nil
}

func validateName(name string) error {
	if utf8.RuneCountInString(name) > maxNameLength {
		return validationError(fmt.Sprintf("names must be at most %d characters", maxNameLength))
	}
	return nil
}

func mapConflict(err error) error {
	switch {
	case errors.Is(err, repository.ErrUsernameTaken):
		return errUsernameTaken
	case errors.Is(err, repository.ErrEmailTaken):
		return errEmailTaken
	}
	return err
}

func mapAccountError(err error) error {
	if errors.Is(err, repository.ErrAccountNotFound) {
		return errAccountNotFound
	}
	return err
}
