// Package mail carries account mails from the API to the worker through a
// Redis stream and delivers them.
package mail

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindVerifyEmail           Kind = "verify_email"
	KindResetPassword         Kind = "reset_password"
	KindConfirmPasswordChange Kind = "confirm_password_change"
	KindConfirmEmailChange    Kind = "confirm_email_change"
)

// Message is one queued mail. Token is the raw single-use value; it only ever
// exists in the stream entry and in the delivered mail.
type Message struct {
	Kind      Kind
	To        string
	AccountID string
	Username  string
	Token     string
}

var ErrMalformedMessage = errors.New("malformed mail message")

// Values encodes the message as stream entry fields.
func (m Message) Values() map[string]any {
	return map[string]any{
		"kind":      string(m.Kind),
		"to":        m.To,
		"accountId": m.AccountID,
		"username":  m.Username,
		"token":     m.Token,
	}
}

// MessageFromValues decodes a stream entry written by Values.
func MessageFromValues(values map[string]interface{}) (Message, error) {
	field := func(name string) string {
		v, _ := values[name].(string)
		return v
	}

	msg := Message{
		Kind:      Kind(field("kind")),
		To:        field("to"),
		AccountID: field("accountId"),
		Username:  field("username"),
		Token:     field("token"),
	}
	if msg.Kind == "" || msg.To == "" || msg.AccountID == "" || msg.Token == "" {
		return Message{}, fmt.Errorf("%w: missing fields", ErrMalformedMessage)
	}
	return msg, nil
}
