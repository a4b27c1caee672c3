package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/jacklaaa89/msgq"
)

// PushDelivery is the push model delivery strategy, the broker pushes deliveries to a consumer
// registered on a channel owned exclusively by the subscription.
//
// Subscribe returns as soon as the consumer is registered. When the subscription context is
// cancelled the consumer is cancelled (if the channel is still open) and the channel is released.
type PushDelivery struct {
	conn Connection
	opts options
}

var _ msgq.Delivery = (*PushDelivery)(nil)

// NewPushDelivery creates a push delivery over conn.
func NewPushDelivery(conn Connection, opts ...Option) *PushDelivery {
	return &PushDelivery{conn: conn, opts: newOptions(opts...)}
}

// Model implements msgq.Delivery.
func (d *PushDelivery) Model() msgq.DeliveryModel {
	return msgq.Push
}

// Subscribe implements msgq.Delivery.
func (d *PushDelivery) Subscribe(ctx context.Context, queue string, dispatch msgq.DispatchFunc) (msgq.Subscription, error) {
	name := d.opts.resolve(queue)
	ch, err := d.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	// the channel is owned by the subscription from here on, release it on any failure.
	fail := func(err error) (msgq.Subscription, error) {
		logError(d.opts.log, "failed closing channel", ch.Close())
		return nil, err
	}

	if d.opts.prefetch > 0 {
		if err = ch.Qos(ctx, d.opts.prefetch); err != nil {
			return fail(fmt.Errorf("set prefetch: %w", err))
		}
	}

	if err = ch.DeclareQueue(ctx, name); err != nil {
		return fail(fmt.Errorf("declare queue %q: %w", name, err))
	}

	tag := d.opts.tagger(queue)
	deliveries, err := ch.Consume(ctx, name, tag)
	if err != nil {
		return fail(fmt.Errorf("consume %q: %w", name, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &subscription{
		queue:  queue,
		tag:    tag,
		ch:     ch,
		cancel: cancel,
		done:   make(chan struct{}),
		log:    d.opts.log.With(zap.String("queue", queue), zap.String("consumer_tag", tag)),
	}
	ch.NotifyError(func(e Error) {
		s.log.Warn("subscription channel closed with error", zap.Error(e))
	})

	s.log.Info("consuming")
	go s.run(ctx, deliveries, dispatch)
	return s, nil
}

// subscription is a single registered broker consumer.
type subscription struct {
	queue  string
	tag    string // the consumer tag, needed to unregister the consumer.
	ch     Channel
	cancel context.CancelFunc
	log    *zap.Logger

	teardownOnce sync.Once
	done         chan struct{}
	err          error
}

// Queue implements msgq.Subscription.
func (s *subscription) Queue() string { return s.queue }

// Done implements msgq.Subscription.
func (s *subscription) Done() <-chan struct{} { return s.done }

// Err implements msgq.Subscription.
func (s *subscription) Err() error { return s.err }

// Close implements msgq.Subscription.
func (s *subscription) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// run hands each delivery to dispatch, in broker delivery order, until ctx is cancelled
// or the broker ends the delivery stream.
func (s *subscription) run(ctx context.Context, deliveries <-chan amqp091.Delivery, dispatch msgq.DispatchFunc) {
	defer s.teardown(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() == nil {
					s.err = ErrDeliveriesClosed
				}
				return
			}
			// both cases may be ready, never dispatch once cancelled.
			if ctx.Err() != nil {
				return
			}
			dispatch(ctx, &message{ch: s.ch, Delivery: d})
		}
	}
}

// teardown unregisters the consumer and releases the channel, exactly once.
// deliveries which were pushed but not dispatched stay unacknowledged and are
// requeued by the broker when the channel closes.
func (s *subscription) teardown(ctx context.Context) {
	s.teardownOnce.Do(func() {
		defer close(s.done)
		defer s.cancel()

		s.log.Info("stopping consumer")
		bg := context.WithoutCancel(ctx)
		if !s.ch.IsClosed() {
			logError(s.log, "failed cancelling consumer", s.ch.Cancel(bg, s.tag))
		}
		logError(s.log, "failed closing channel", s.ch.Close())
	})
}
