package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"travelblog/internal/mail"
)

// Processor turns outbox entries into delivered mails.
type Processor struct {
	sender    mail.Sender
	publicURL string
	logger    zerolog.Logger
}

func NewProcessor(sender mail.Sender, publicURL string, logger zerolog.Logger) *Processor {
	return &Processor{
		sender:    sender,
		publicURL: publicURL,
		logger:    logger,
	}
}

// Handle returns an error only for delivery failures, which are retried.
// Entries that can never be delivered are logged and acknowledged.
func (p *Processor) Handle(ctx context.Context, msg redis.XMessage) error {
	decoded, err := mail.MessageFromValues(msg.Values)
	if err != nil {
		p.drop(msg.ID, err)
		return nil
	}

	rendered, err := mail.Render(p.publicURL, decoded)
	if err != nil {
		if errors.Is(err, mail.ErrMalformedMessage) {
			p.drop(msg.ID, err)
			return nil
		}
		return fmt.Errorf("render %s: %w", decoded.Kind, err)
	}

	if err := p.sender.Send(ctx, rendered); err != nil {
		return fmt.Errorf("send %s: %w", decoded.Kind, err)
	}

	p.logger.Info().
		Str("message_id", msg.ID).
		Str("kind", string(decoded.Kind)).
		Str("account_id", decoded.AccountID).
		Msg("mail delivered")
	return nil
}

func (p *Processor) drop(id string, err error) {
	p.logger.Warn().Err(err).Str("message_id", id).Msg("dropping undeliverable mail")
}
