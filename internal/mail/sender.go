package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"travelblog/internal/config"
)

// Rendered is a mail ready for delivery.
type Rendered struct {
	To      string
	Subject string
	Body    string
}

type Sender interface {
	Send(ctx context.Context, mail Rendered) error
}

// NewSender picks the delivery driver configured for the worker.
func NewSender(cfg config.MailConfig, logger zerolog.Logger) (Sender, error) {
	switch cfg.Driver {
	case "smtp":
		return &SMTPSender{cfg: cfg}, nil
	case "log", "":
		return &LogSender{logger: logger}, nil
	}
	return nil, fmt.Errorf("unknown mail driver %q", cfg.Driver)
}

type SMTPSender struct {
	cfg config.MailConfig
}

func (s *SMTPSender) Send(_ context.Context, m Rendered) error {
	addr := net.JoinHostPort(s.cfg.SMTPHost, strconv.Itoa(s.cfg.SMTPPort))
	auth := smtp.PlainAuth("", s.cfg.SMTPUser, s.cfg.SMTPPass, s.cfg.SMTPHost)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", m.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", m.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(m.Body)

	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{m.To}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// LogSender writes mails to the log instead of delivering them. Used in
// development; the body holds a live token, so never enable it in production.
type LogSender struct {
	logger zerolog.Logger
}

func (s *LogSender) Send(_ context.Context, m Rendered) error {
	s.logger.Info().
		Str("to", m.To).
		Str("subject", m.Subject).
		Str("body", m.Body).
		Msg("mail delivered to log")
	return nil
}
