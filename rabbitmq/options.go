package rabbitmq

import (
	"go.uber.org/zap"
)

// Option configures a connection, Producer or PushDelivery.
type Option func(o *options)

type options struct {
	log      *zap.Logger
	queues   map[string]string
	prefetch int
	tagger   func(queue string) string
}

func newOptions(opts ...Option) options {
	o := options{
		log:    zap.L(),
		tagger: consumerTag,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithLogger sets the logger, defaults to zap.L().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithQueueNames maps logical queue names to broker queue names.
// names which are not mapped are used as is.
func WithQueueNames(names map[string]string) Option {
	return func(o *options) {
		o.queues = names
	}
}

// WithPrefetch limits how many unacknowledged deliveries the broker pushes to a
// single subscription, zero leaves the broker default.
func WithPrefetch(count int) Option {
	return func(o *options) {
		o.prefetch = count
	}
}

// resolve maps a logical queue name to the broker queue name.
func (o options) resolve(queue string) string {
	if name, ok := o.queues[queue]; ok && name != "" {
		return name
	}
	return queue
}
