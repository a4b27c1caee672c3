package rabbitmq

import (
	"context"
	"io"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Channel represents a single AMQP channel.
//
// A channel is a lightweight connection multiplexed over a single TCP connection. Delivery tags are scoped
// to the channel which delivered them, so a channel is never re-established behind a subscription's back:
// once closed every operation returns ErrChannelClosed.
type Channel interface {
	io.Closer

	// Qos sets the prefetch count on the channel, limiting how many unacknowledged deliveries
	// the broker pushes at once.
	Qos(ctx context.Context, count int) error
	// DeclareQueue idempotently declares a durable, non-exclusive, non auto-deleting queue without arguments.
	DeclareQueue(ctx context.Context, name string) error
	// Publish publishes body as a persistent message to the default exchange, routed directly to queue.
	Publish(ctx context.Context, queue string, body []byte) error
	// Consume starts consuming from queue under consumerTag with explicit acknowledgements.
	Consume(ctx context.Context, queue, consumerTag string) (<-chan amqp091.Delivery, error)
	// Cancel stops the consumer registered under consumerTag.
	Cancel(ctx context.Context, consumerTag string) error
	// Ack acknowledges a single delivery.
	Ack(ctx context.Context, deliveryTag uint64) error
	// NotifyError registers fn to receive errors the broker closes the channel with.
	NotifyError(fn ErrorNotificationFunc)
	// IsClosed determines if the channel is closed.
	IsClosed() bool
}

// queue durability profile, messages survive a broker restart.
const (
	queueDurable    = true
	queueAutoDelete = false
	queueExclusive  = false
)

// channel represents a wrapped amqp091.Channel
type channel struct {
	mu        sync.RWMutex // mu a guarding mutex for the internal channel.
	emitMu    sync.RWMutex // mutex for error handlers.
	closeOnce sync.Once
	log       *zap.Logger

	// closed represents whether we have called close specifically on our channel
	// or the broker has closed it.
	closed bool
	errFns []ErrorNotificationFunc

	Channel amqp091Channel // the wrapped channel.
}

// newChannel wraps ch and starts listening for closes.
func newChannel(ch amqp091Channel, log *zap.Logger) *channel {
	c := &channel{Channel: ch, log: log}
	c.init()
	return c
}

// init initialises a channel to listen for closes.
func (c *channel) init() {
	handleNotifyError(c.Channel, c.emitError, func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
	})
}

// Qos attempts to set the prefetch count for consumers on the channel.
func (c *channel) Qos(ctx context.Context, count int) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Qos(count, 0, false)
	})
}

// DeclareQueue attempts to declare a durable queue.
func (c *channel) DeclareQueue(ctx context.Context, name string) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		_, err := ch.QueueDeclare(name, queueDurable, queueAutoDelete, queueExclusive, false, nil)
		return err
	})
}

// Publish attempts to publish a persistent message routed directly to queue.
func (c *channel) Publish(ctx context.Context, queue string, body []byte) error {
	m := mimetype.Detect(body)
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.PublishWithContext(ctx, "", queue, false, false, amqp091.Publishing{
			ContentType:  m.String(),
			DeliveryMode: amqp091.Persistent,
			Body:         body,
		})
	})
}

// Consume attempts to consume from a queue, deliveries must be acknowledged explicitly.
func (c *channel) Consume(ctx context.Context, queue, consumerTag string) (<-chan amqp091.Delivery, error) {
	var deliveries <-chan amqp091.Delivery
	err := c.onChannel(ctx, func(ch amqp091Channel) error {
		var cErr error
		deliveries, cErr = ch.Consume(queue, consumerTag, false, false, false, false, nil)
		return cErr
	})
	return deliveries, err
}

// Cancel attempts to cancel a consumer.
func (c *channel) Cancel(ctx context.Context, consumerTag string) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Cancel(consumerTag, false)
	})
}

// Ack attempts to acknowledge a single delivery.
func (c *channel) Ack(ctx context.Context, deliveryTag uint64) error {
	return c.onChannel(ctx, func(ch amqp091Channel) error {
		return ch.Ack(deliveryTag, false)
	})
}

// NotifyError registers a handler to be triggered when the broker closes the channel with an error.
func (c *channel) NotifyError(fn ErrorNotificationFunc) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if fn == nil {
		return
	}

	c.errFns = append(c.errFns, fn)
}

// emitError emits an error to all handlers.
func (c *channel) emitError(e Error) {
	c.emitMu.RLock()
	defer c.emitMu.RUnlock()
	c.log.Warn("channel closed by broker", zap.Error(e))
	for _, fn := range c.errFns {
		fn(e)
	}
}

// Close closes the wrapped channel, only the first call releases it.
func (c *channel) Close() error {
	var err error = amqp091.ErrClosed
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		alreadyClosed := c.closed || isClosed(c.Channel)
		c.closed = true
		if alreadyClosed {
			err = nil
			return
		}
		err = c.Channel.Close()
	})
	return err
}

// IsClosed wraps the original IsClosed function.
func (c *channel) IsClosed() bool {
	if c == nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return true
	}

	return isClosed(c.Channel)
}

// onChannel helper function to perform an action on the raw amqp091.Channel
func (c *channel) onChannel(_ context.Context, fn func(ch amqp091Channel) error) error {
	if c.IsClosed() {
		return ErrChannelClosed
	}

	c.mu.RLock()
	err := fn(c.Channel)
	c.mu.RUnlock()

	if err != nil {
		c.log.Debug("channel operation failed", zap.Error(err))
	}
	return err
}
