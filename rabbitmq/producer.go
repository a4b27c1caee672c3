package rabbitmq

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
)

// Producer publishes to broker queues, a short lived channel is opened per send.
type Producer struct {
	conn Connection
	opts options
}

var _ msgq.Producer = (*Producer)(nil)

// NewProducer creates a producer publishing over conn.
func NewProducer(conn Connection, opts ...Option) *Producer {
	return &Producer{conn: conn, opts: newOptions(opts...)}
}

// Send declares queue and publishes payload to it as a persistent message.
//
// errors from the broker are returned to the caller without retrying.
func (p *Producer) Send(ctx context.Context, queue, payload string) error {
	if err := msgq.ValidateQueueName(queue); err != nil {
		return err
	}

	name := p.opts.resolve(queue)
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer func() {
		logError(p.opts.log, "failed closing channel", ch.Close())
	}()

	if err = ch.DeclareQueue(ctx, name); err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}

	if err = ch.Publish(ctx, name, []byte(payload)); err != nil {
		return fmt.Errorf("publish to %q: %w", name, err)
	}

	p.opts.log.Debug("message published", zap.String("queue", name), zap.Int("size", len(payload)))
	return nil
}
