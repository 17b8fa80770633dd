package mail

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamMaxLen bounds the stream; acknowledged entries are trimmed lazily.
const streamMaxLen = 100_000

type Outbox struct {
	client *redis.Client
	stream string
}

func NewOutbox(client *redis.Client, stream string) *Outbox {
	return &Outbox{client: client, stream: stream}
}

func (o *Outbox) Enqueue(ctx context.Context, msg Message) error {
	err := o.client.XAdd(ctx, &redis.XAddArgs{
		Stream: o.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: msg.Values(),
	}).Err()
	if err != nil {
		return fmt.Errorf("enqueue %s mail: %w", msg.Kind, err)
	}
	return nil
}
