package msgq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Handler processes the payload of a single message. Returning an error (or panicking)
// leaves the message unacknowledged.
type Handler func(ctx context.Context, body string) error

// Option configures a Consumer.
type Option func(c *Consumer)

// WithLogger sets the logger, defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(c *Consumer) {
		if l != nil {
			c.log = l
		}
	}
}

// WithObserver adds an observer which receives every consumer event.
func WithObserver(o Observer) Option {
	return func(c *Consumer) {
		c.observers = append(c.observers, o)
	}
}

// Consumer consumes from one or more named queues through a single Delivery strategy.
//
// Each queue name owns an independent subscription so deliveries for different
// queues never contend with one another. It is safe for concurrent use.
type Consumer struct {
	delivery  Delivery
	log       *zap.Logger
	observers []Observer
	notify    Observer

	subs *registry
	wg   sync.WaitGroup
}

// NewConsumer creates a consumer on top of the supplied delivery strategy.
func NewConsumer(d Delivery, opts ...Option) *Consumer {
	c := &Consumer{
		delivery: d,
		log:      zap.L(),
	}
	c.subs = newRegistry(&c.wg)
	for _, opt := range opts {
		opt(c)
	}
	c.notify = observers(c.observers...)
	c.log = c.log.With(zap.Stringer("model", d.Model()))
	return c
}

// Model returns the delivery model of the underlying strategy.
func (c *Consumer) Model() DeliveryModel {
	return c.delivery.Model()
}

// Receive subscribes handler to queue, ctx is the cancellation signal for the subscription.
//
// For the Poll model Receive blocks until ctx is cancelled (or the consumer is closed)
// and the subscription has been torn down. For the Push model Receive returns once the
// subscription is active and teardown happens asynchronously on cancellation, see Wait.
//
// Cancellation is not an error: in both cases nil is returned, including when ctx is
// cancelled before the subscription could be established.
func (c *Consumer) Receive(ctx context.Context, queue string, handler Handler) error {
	if err := ValidateQueueName(queue); err != nil {
		return err
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrInvalidArgument)
	}

	s, err := c.subs.reserve(queue)
	if err != nil {
		return fmt.Errorf("queue %q: %w", queue, err)
	}

	log := c.log.With(zap.String("queue", queue))
	sub, err := c.delivery.Subscribe(ctx, queue, c.dispatcher(queue, handler, log))
	if err != nil {
		c.subs.remove(queue, s)
		c.wg.Done()
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			log.Debug("cancelled while subscribing", zap.Error(err))
			return nil
		}
		return err
	}

	if !c.subs.fill(queue, s, sub) {
		// closed while subscribing.
		logError(log, sub.Close())
		c.wg.Done()
		return ErrConsumerClosed
	}

	log.Info("subscribed")
	c.notify(Event{Queue: queue, Kind: EventSubscribed})

	stopped := make(chan struct{})
	go func() {
		defer c.wg.Done()
		defer close(stopped)
		<-sub.Done()
		c.subs.remove(queue, s)

		stopErr := sub.Err()
		if stopErr != nil {
			log.Error("subscription stopped", zap.Error(stopErr))
		} else {
			log.Info("subscription stopped")
		}
		c.notify(Event{Queue: queue, Kind: EventStopped, Err: stopErr})
	}()

	if c.delivery.Model() == Poll {
		<-stopped
	}
	return nil
}

// Wait blocks until every subscription started by this consumer has been torn down.
func (c *Consumer) Wait() {
	c.wg.Wait()
}

// Active returns the sorted queue names which currently have a subscription.
func (c *Consumer) Active() []string {
	return c.subs.names()
}

// Close tears down all active subscriptions, releasing their backend resources, and waits for
// them to finish. Subsequent calls to Receive return ErrConsumerClosed.
func (c *Consumer) Close() error {
	var errs []error
	for _, sub := range c.subs.close() {
		if err := sub.Close(); err != nil {
			errs = append(errs, fmt.Errorf("queue %q: %w", sub.Queue(), err))
		}
	}
	c.wg.Wait()
	return errors.Join(errs...)
}

// dispatcher builds the per message function handed to the delivery strategy.
//
// the message is only acknowledged after handler returned without error, failures are
// logged and reported and the message is left to the backends redelivery.
func (c *Consumer) dispatcher(queue string, handler Handler, log *zap.Logger) DispatchFunc {
	return func(ctx context.Context, m Message) {
		if err := invoke(ctx, handler, m); err != nil {
			log.Warn("failed processing message", zap.Error(err))
			c.notify(Event{Queue: queue, Kind: EventHandlerFailed, Err: err})
			return
		}

		// the handler has completed, shutting down must not lose the ack.
		if err := m.Ack(context.WithoutCancel(ctx)); err != nil {
			log.Error("failed acknowledging message", zap.Error(err))
			c.notify(Event{Queue: queue, Kind: EventAckFailed, Err: err})
			return
		}

		log.Debug("message acknowledged")
		c.notify(Event{Queue: queue, Kind: EventAcked})
	}
}

// invoke runs handler converting a panic into an error.
func invoke(ctx context.Context, handler Handler, m Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, string(m.Body()))
}

// logError helper function to log an error.
func logError(log *zap.Logger, err error) {
	if err == nil {
		return
	}
	log.Error("unexpected error", zap.Error(err))
}
