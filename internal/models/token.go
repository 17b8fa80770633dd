package models

import "time"

type TokenPurpose string

const (
	TokenPurposeEmailVerification TokenPurpose = "email_verification"
	TokenPurposePasswordReset     TokenPurpose = "password_reset"
	TokenPurposePasswordChange    TokenPurpose = "password_change"
	TokenPurposeEmailChange       TokenPurpose = "email_change"
)

// EphemeralToken is the current single-use token for an (account, purpose)
// pair. Only the hash of the token value is stored.
type EphemeralToken struct {
	AccountID  string
	Purpose    TokenPurpose
	TokenHash  []byte
	Payload    *string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}
