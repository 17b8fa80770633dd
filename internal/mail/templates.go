package mail

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"text/template"
)

type templateData struct {
	Username string
	Link     string
}

type mailTemplate struct {
	subject string
	path    string
	body    *template.Template
}

var templates = map[Kind]mailTemplate{
	KindVerifyEmail: {
		subject: "Verify your email address",
		path:    "/auth/verify-email",
		body: template.Must(template.New("verify").Parse(`Hi {{.Username}},

Welcome to the travel blog. Confirm your email address by opening:

{{.Link}}

The link expires in 24 hours.
`)),
	},
	KindResetPassword: {
		subject: "Reset your password",
		path:    "/reset-password",
		body: template.Must(template.New("reset").Parse(`Hi {{.Username}},

Someone asked to reset the password of your account. If it was you, open:

{{.Link}}

The link expires in one hour. If it was not you, ignore this mail.
`)),
	},
	KindConfirmPasswordChange: {
		subject: "Confirm your password change",
		path:    "/auth/verify-password-change",
		body: template.Must(template.New("password-change").Parse(`Hi {{.Username}},

Confirm the new password for your account by opening:

{{.Link}}

Until you confirm, your current password stays in effect.
`)),
	},
	KindConfirmEmailChange: {
		subject: "Confirm your new email address",
		path:    "/auth/verify-email-change",
		body: template.Must(template.New("email-change").Parse(`Hi {{.Username}},

Confirm that this address should become the email of your account:

{{.Link}}
`)),
	},
}

// Render builds the mail for msg with links rooted at publicURL.
func Render(publicURL string, msg Message) (Rendered, error) {
	tpl, ok := templates[msg.Kind]
	if !ok {
		return Rendered{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedMessage, msg.Kind)
	}

	query := url.Values{}
	query.Set("token", msg.Token)
	query.Set("userId", msg.AccountID)
	link := strings.TrimSuffix(publicURL, "/") + tpl.path + "?" + query.Encode()

	var body bytes.Buffer
	if err := tpl.body.Execute(&body, templateData{Username: msg.Username, Link: link}); err != nil {
		return Rendered{}, fmt.Errorf("render %s: %w", msg.Kind, err)
	}

	return Rendered{To: msg.To, Subject: tpl.subject, Body: body.String()}, nil
}
